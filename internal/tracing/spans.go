package tracing

// Span attribute keys.
const (
	AttrConversationID = "conversation.id"
	AttrModel          = "codex.model"
	AttrSandbox        = "codex.sandbox"
	AttrApprovalPolicy = "codex.approval_policy"
	AttrYolo           = "codex.yolo"
	AttrCwd            = "codex.cwd"
	AttrEventCount     = "codex.events"
	AttrRequestID      = "approval.request_id"
	AttrApproved       = "approval.approved"

	AttrProcessPID      = "process.pid"
	AttrProcessExitCode = "process.exit_code"
	AttrCancelled       = "process.cancelled"

	AttrErrorMessage = "error.message"
)

// Span names.
const (
	SpanTurn    = "codex.turn"
	SpanInstall = "codex.install"
)

// Span event names.
const (
	EventSpawned           = "process.spawned"
	EventApprovalRequested = "approval.requested"
	EventApprovalAnswered  = "approval.answered"
	EventSuperseded        = "turn.superseded"
)
