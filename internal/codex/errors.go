package codex

import "errors"

var (
	// ErrApprovalNotFound means the request was already answered, cancelled or superseded.
	ErrApprovalNotFound = errors.New("approval request not found")
	// ErrProcessNotRunning means the owning conversation has no live process.
	ErrProcessNotRunning = errors.New("conversation process not running")
	// ErrStdinUnavailable means the process was started without a writable stdin.
	ErrStdinUnavailable = errors.New("process stdin is not available")
	// ErrEmptyConversationID is returned for a blank conversation id.
	ErrEmptyConversationID = errors.New("conversation id is required")
)
