package ipc

import "fmt"

// Commands accepted by a running engine.
const (
	CommandStatus = "status"
	CommandStop   = "stop"
	CommandRetry  = "retry"
)

// Request is one newline-delimited JSON command.
type Request struct {
	Command string `json:"command"`
}

// Validate rejects commands the engine does not understand.
func (r Request) Validate() error {
	switch r.Command {
	case CommandStatus, CommandStop, CommandRetry:
		return nil
	case "":
		return fmt.Errorf("missing command")
	default:
		return fmt.Errorf("unknown command %q", r.Command)
	}
}

// Response reports the engine view after handling a command. Question and
// RemainingMS are omitted when not applicable.
type Response struct {
	OK          bool   `json:"ok"`
	State       string `json:"state,omitempty"`
	Room        string `json:"room,omitempty"`
	Question    *int   `json:"question,omitempty"`
	RemainingMS *int64 `json:"remaining_ms,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}
