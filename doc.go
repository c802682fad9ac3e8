// Package agentapi provides typed Go clients for the agentapi HTTP service.
//
// Two client flavors are exposed. Client is the core facade for a single
// running agent: it sends messages, reads status and conversation history,
// uploads files, and can block until the agent becomes idle. Its methods are
// synchronous and bounded only by the transport timeout configured at
// construction. AsyncClient mirrors the message and status operations with
// context-aware methods for callers that need cancellation at the network
// boundary.
//
// CompletionsClient is the second flavor, covering the OpenAI-style
// completion endpoint and the administrative surface (routing rules and
// sessions).
//
// Every request carries a bearer token resolved from the explicit option,
// the AGENTAPI_KEY environment variable, or a literal fallback, in that
// order.
package agentapi
