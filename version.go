package agentapi

// Version is the SDK release version, reported by the agentctl CLI.
const Version = "0.3.0"
