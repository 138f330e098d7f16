// Package common contains shared constants and logging setup for the agent.
package common

// Version is the agent version reported to the orchestrator during
// registration. Overridable via ldflags at build time.
var Version = "1.0.0"

// PackageName identifies this service in logs and metrics.
const PackageName = "vm-agent"
