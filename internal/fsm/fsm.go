package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle           State = "idle"
	StateAwaitingPrompt State = "awaiting_prompt"
	StatePlayingPrompt  State = "playing_prompt"
	StateCountdown      State = "countdown"
	StateRecording      State = "recording"
	StateStopping       State = "stopping"
	StateUploading      State = "uploading"
	StateSettled        State = "settled"
	StateRedirected     State = "redirected"
)

const (
	EventStart       Event = "start"
	EventPromptReady Event = "prompt_ready"
	EventPlayed      Event = "played"
	EventRecord      Event = "record"
	EventStop        Event = "stop"
	EventFinalized   Event = "finalized"
	EventDelivered   Event = "delivered"
	EventAbort       Event = "abort"
	EventFail        Event = "fail"
	EventRedirect    Event = "redirect"
)

// Transition is the engine's top-level transition table. Redirect is
// accepted from every state, including redirected itself.
func Transition(current State, event Event) (State, error) {
	if event == EventRedirect {
		if !known(current) {
			return current, fmt.Errorf("unknown state %q", current)
		}
		return StateRedirected, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateAwaitingPrompt, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAwaitingPrompt:
		switch event {
		case EventPromptReady:
			return StatePlayingPrompt, nil
		case EventAbort:
			return StateSettled, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StatePlayingPrompt:
		switch event {
		case EventPlayed:
			return StateCountdown, nil
		case EventFail:
			return StateAwaitingPrompt, nil
		case EventAbort:
			return StateSettled, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCountdown:
		switch event {
		case EventRecord:
			return StateRecording, nil
		case EventAbort:
			return StateSettled, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateStopping, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopping:
		switch event {
		case EventFinalized:
			return StateUploading, nil
		case EventFail:
			return StateSettled, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateUploading:
		switch event {
		case EventDelivered:
			return StateSettled, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSettled, StateRedirected:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Terminal reports whether no further transitions are possible.
func Terminal(state State) bool {
	return state == StateRedirected
}

func known(state State) bool {
	switch state {
	case StateIdle, StateAwaitingPrompt, StatePlayingPrompt, StateCountdown,
		StateRecording, StateStopping, StateUploading, StateSettled, StateRedirected:
		return true
	default:
		return false
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
