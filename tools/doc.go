// Package tools implements the agent's remotely callable capabilities.
//
// Each tool is a small wrapper over OS functionality with its own
// policy knobs:
//
//   - ShellExecutor runs shell commands with a timeout cap, a blocked
//     command list and an in-memory execution history.
//   - FileManager reads, writes and lists files under glob-based path
//     policy with a size cap.
//   - SystemMonitor reports CPU, memory, disk, network and host
//     metrics.
//   - LogAnalyzer tails log files and summarizes error and warning
//     density.
//
// The Registry maps RPC method names to tool invocations and produces
// the capability map declared during registration.
package tools
