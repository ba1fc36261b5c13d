package fsm

import "fmt"

// CaptureState is the lifecycle of one capture session.
type CaptureState string

const (
	CaptureArmed     CaptureState = "armed"
	CaptureRecording CaptureState = "recording"
	CaptureStopped   CaptureState = "stopped"
)

const (
	EventRearm Event = "rearm"
)

func CaptureTransition(current CaptureState, event Event) (CaptureState, error) {
	switch current {
	case CaptureArmed:
		if event == EventStart {
			return CaptureRecording, nil
		}
	case CaptureRecording:
		if event == EventStop || event == EventAbort {
			return CaptureStopped, nil
		}
	case CaptureStopped:
		if event == EventRearm {
			return CaptureArmed, nil
		}
	default:
		return current, fmt.Errorf("unknown capture state %q", current)
	}
	return current, fmt.Errorf("invalid transition: %s --(%s)--> ?", current, event)
}
