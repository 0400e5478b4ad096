package shell

// Event is a shell or terminal notification.
type Event interface {
	// Kind is the wire event name, e.g. "pty-data".
	Kind() string
}

// CommandOutput carries the captured output of a finished RunCommand.
type CommandOutput struct {
	CommandID string `json:"commandId"`
	Stream    string `json:"type"`
	Data      string `json:"data"`
}

// PTYData is a chunk of terminal output.
type PTYData struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

// PTYExit is sent once when a terminal's shell exits.
type PTYExit struct {
	ID       string `json:"id"`
	ExitCode int    `json:"exitCode"`
}

func (CommandOutput) Kind() string { return "command-output" }
func (PTYData) Kind() string       { return "pty-data" }
func (PTYExit) Kind() string       { return "pty-exit" }

// Sink receives shell events from reader goroutines.
type Sink interface {
	Notify(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Notify calls f(e).
func (f SinkFunc) Notify(e Event) { f(e) }
