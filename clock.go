package agentapi

import "time"

// Clock abstracts wall-clock time and sleeping so polling loops can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
