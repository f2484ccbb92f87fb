package turn

// State is the voice turn the session is currently in. The assistant is
// half-duplex: it is either listening to the caller, working out a reply,
// or speaking one.
type State int

const (
	StateIdle State = iota
	StateListening
	StateThinking
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateThinking:
		return "THINKING"
	case StateSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// validTransitions encodes the turn-taking cycle. Thinking may fall back
// to Listening when a turn is abandoned, and any state may end at Idle
// except Idle itself.
var validTransitions = map[State][]State{
	StateIdle:      {StateListening},
	StateListening: {StateThinking, StateIdle},
	StateThinking:  {StateSpeaking, StateListening, StateIdle},
	StateSpeaking:  {StateListening, StateIdle},
}

func transitionValid(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports a rejected state change.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid turn transition from " + e.From.String() + " to " + e.To.String()
}
