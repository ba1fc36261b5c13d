package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rbright/viva/internal/capture"
	"github.com/rbright/viva/internal/fsm"
	"github.com/rbright/viva/internal/ipc"
)

// Handle serves IPC commands for the running engine. Commands are executed
// on the engine loop.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	reply := make(chan ipc.Response, 1)
	select {
	case c.events <- event{kind: eventControl, command: req.Command, reply: reply}:
	case <-c.done:
		return ipc.Response{OK: false, State: string(c.State()), Error: "engine is not running"}
	case <-ctx.Done():
		return ipc.Response{OK: false, State: string(c.State()), Error: ctx.Err().Error()}
	}

	select {
	case resp := <-reply:
		return resp
	case <-c.done:
		return ipc.Response{OK: false, State: string(c.State()), Error: "engine is not running"}
	case <-ctx.Done():
		return ipc.Response{OK: false, State: string(c.State()), Error: ctx.Err().Error()}
	}
}

// control runs one IPC command on the loop goroutine.
func (c *Controller) control(ctx context.Context, command string) ipc.Response {
	state := c.State()
	switch command {
	case "status":
		return c.statusResponse()
	case "stop":
		if state != fsm.StateRecording {
			return ipc.Response{OK: true, State: string(state), Message: "no recording in progress"}
		}
		c.stop(ctx, capture.ReasonUser)
		return ipc.Response{OK: true, State: string(c.State()), Message: "answer stopped"}
	case "retry":
		switch {
		case state == fsm.StateCountdown && c.captureFailed && c.countdownT == nil:
			c.startRecording(ctx)
			if c.State() != fsm.StateRecording {
				return ipc.Response{OK: false, State: string(c.State()), Error: "microphone still unavailable"}
			}
			return ipc.Response{OK: true, State: string(c.State()), Message: "recording"}
		case state == fsm.StateAwaitingPrompt && c.promptFailed:
			c.requestPrompt(ctx)
			return ipc.Response{OK: true, State: string(state), Message: "reloading question audio"}
		default:
			return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("nothing to retry in state %s", state)}
		}
	default:
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("unknown command: %s", command)}
	}
}

func (c *Controller) statusResponse() ipc.Response {
	state := c.State()
	question := c.question.Index
	resp := ipc.Response{OK: true, State: string(state), Room: c.id.Room, Question: &question, Message: "status"}
	if state == fsm.StateRecording {
		if remaining, ok := c.tracker.Remaining(time.Now()); ok {
			ms := remaining.Milliseconds()
			resp.RemainingMS = &ms
		}
	}
	return resp
}
