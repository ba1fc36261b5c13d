// Package status classifies polled session-status signals.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/rbright/viva/internal/deadline"
)

// Code is the integer verdict reported by the session server.
type Code int

const (
	CodeInvalid     Code = 0
	CodeClosed      Code = 1
	CodeContinue    Code = 2
	CodeRemoved     Code = 3
	CodeHardTimeout Code = 4
	CodeSoftTimeout Code = 5
	CodeAdvance     Code = 6
)

func (c Code) String() string {
	switch c {
	case CodeInvalid:
		return "invalid"
	case CodeClosed:
		return "closed"
	case CodeContinue:
		return "continue"
	case CodeRemoved:
		return "removed"
	case CodeHardTimeout:
		return "hard_timeout"
	case CodeSoftTimeout:
		return "soft_timeout"
	case CodeAdvance:
		return "advance"
	default:
		return "unrecognized"
	}
}

// Signal is one polled server verdict. Started and Limit are optional.
type Signal struct {
	Code     Code
	Redirect string
	Started  *time.Time
	Limit    *time.Duration
}

// Action is what the engine must do with a signal.
type Action int

const (
	ActionNone Action = iota
	ActionWarn
	ActionForceStop
	ActionAdvance
	ActionRedirect
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionWarn:
		return "warn"
	case ActionForceStop:
		return "force_stop"
	case ActionAdvance:
		return "advance"
	case ActionRedirect:
		return "redirect"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Verdict is the single decision derived from one signal.
type Verdict struct {
	Action Action
	Reason string
	// Room is the advance destination.
	Room string
	// Deadline is set when the signal carried a usable anchor/limit pair.
	Deadline *deadline.Deadline
}

// Terminal reports whether the verdict ends the engine instance.
func (v Verdict) Terminal() bool {
	return v.Action == ActionAdvance || v.Action == ActionRedirect
}

// Classify maps a signal to exactly one verdict. Terminal verdicts never
// carry a deadline refresh.
func Classify(sig Signal) Verdict {
	switch sig.Code {
	case CodeInvalid, CodeClosed, CodeRemoved:
		return Verdict{Action: ActionRedirect, Reason: sig.Code.String()}
	case CodeAdvance:
		room := strings.TrimSpace(sig.Redirect)
		if room == "" {
			return Verdict{Action: ActionRedirect, Reason: "advance without destination"}
		}
		return Verdict{Action: ActionAdvance, Reason: sig.Code.String(), Room: room}
	case CodeContinue:
		return Verdict{Action: ActionNone, Reason: sig.Code.String(), Deadline: refresh(sig)}
	case CodeHardTimeout:
		return Verdict{Action: ActionForceStop, Reason: sig.Code.String(), Deadline: refresh(sig)}
	case CodeSoftTimeout:
		return Verdict{Action: ActionWarn, Reason: sig.Code.String(), Deadline: refresh(sig)}
	default:
		return Verdict{Action: ActionRedirect, Reason: fmt.Sprintf("unrecognized status %d", int(sig.Code))}
	}
}

func refresh(sig Signal) *deadline.Deadline {
	if sig.Started == nil || sig.Limit == nil || *sig.Limit <= 0 {
		return nil
	}
	return &deadline.Deadline{Anchor: *sig.Started, Limit: *sig.Limit}
}

// WarningMessage is the soft-timeout banner text.
func WarningMessage(premium bool) string {
	suffix := "finish your answer now."
	if premium {
		suffix = "finish your answer now; your recording will be saved automatically."
	}
	return "About 5 seconds remain: " + suffix
}
