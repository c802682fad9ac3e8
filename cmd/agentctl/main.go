package main

import "github.com/coder/agentapi-sdk-go/internal/cli"

func main() {
	cli.Execute()
}
