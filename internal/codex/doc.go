// Package codex hosts the `codex exec --json` subprocess.
//
// A Service owns the runtime settings, the per-conversation Registry of live
// processes and the ApprovalBroker. Each submitted prompt is launched with an
// argument vector built by BuildExecArgs; the child's stdout is cut into lines
// by a LineFramer and every line is decoded into an Event and routed to a Sink
// as a typed Notification. Approval requests found on the stream are answered
// by writing a JSON line back to the child's stdin.
package codex
