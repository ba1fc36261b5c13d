package session

import (
	"github.com/rbright/viva/internal/delivery"
	"github.com/rbright/viva/internal/exam"
	"github.com/rbright/viva/internal/ipc"
	"github.com/rbright/viva/internal/status"
)

type eventKind int

const (
	eventPoll eventKind = iota + 1
	eventPromptStarted
	eventPromptDone
	eventPromptFailed
	eventDeadline
	eventDelivered
	eventControl
)

// event is the only way work reaches the engine loop.
type event struct {
	kind     eventKind
	signal   status.Signal
	err      error
	question exam.Question
	delivery *delivery.Delivery
	command  string
	reply    chan ipc.Response
}
