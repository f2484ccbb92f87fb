package conversation

import (
	"time"

	"github.com/voxmail/voxmail/pkg/intent"
)

// Phase is the conversation's position in the slot-filling state machine.
type Phase string

const (
	PhaseIdle                Phase = "idle"
	PhaseCollectingInfo      Phase = "collecting_info"
	PhaseProcessing          Phase = "processing"
	PhaseWaitingConfirmation Phase = "waiting_confirmation"
	PhaseError               Phase = "error"
)

func (p Phase) String() string { return string(p) }

// historyCap bounds conversation history; older messages fall off FIFO.
const historyCap = 20

// Message is one history entry, tagged with the speaking role.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// State carries everything a single conversation accumulates across turns.
// It is owned by exactly one session and is not safe for concurrent use.
type State struct {
	Phase             Phase       `json:"phase"`
	CurrentIntent     intent.Type `json:"current_intent,omitempty"`
	Draft             *Draft      `json:"draft_email,omitempty"`
	CurrentEmailID    string      `json:"current_email_id,omitempty"`
	LastSearchQuery   string      `json:"last_search_query,omitempty"`
	LastSearchResults []string    `json:"last_search_results,omitempty"`
	History           []Message   `json:"conversation_history,omitempty"`
	LastError         string      `json:"last_error,omitempty"`
	LastInteraction   time.Time   `json:"last_interaction"`

	// ContextData holds free-form per-call context. Reset leaves it
	// alone, like history.
	ContextData map[string]any `json:"context_data,omitempty"`
}

func NewState() *State {
	return &State{Phase: PhaseIdle, LastInteraction: time.Now()}
}

// AddMessage appends to history, evicting the oldest entries past the cap.
func (s *State) AddMessage(role, content string) {
	s.History = append(s.History, Message{Role: role, Content: content, Timestamp: time.Now()})
	s.LastInteraction = time.Now()
	if len(s.History) > historyCap {
		s.History = s.History[len(s.History)-historyCap:]
	}
}

// RecentContext returns up to n of the newest history entries.
func (s *State) RecentContext(n int) []Message {
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// LastAssistantMessage returns the newest assistant utterance, if any.
func (s *State) LastAssistantMessage() (string, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == "assistant" {
			return s.History[i].Content, true
		}
	}
	return "", false
}

func (s *State) SetError(msg string) {
	s.Phase = PhaseError
	s.LastError = msg
}

func (s *State) ClearError() {
	if s.Phase == PhaseError {
		s.Phase = PhaseIdle
	}
	s.LastError = ""
}

// Reset returns the state machine to idle. History survives so later
// turns keep their context.
func (s *State) Reset() {
	s.Phase = PhaseIdle
	s.CurrentIntent = ""
	s.Draft = nil
	s.CurrentEmailID = ""
	s.LastSearchQuery = ""
	s.LastSearchResults = nil
	s.ClearError()
}

// Active reports whether an operation is in flight.
func (s *State) Active() bool {
	return s.Phase != PhaseIdle && s.Phase != PhaseError
}

// IdleFor returns how long the conversation has gone without a message.
func (s *State) IdleFor() time.Duration {
	return time.Since(s.LastInteraction)
}
