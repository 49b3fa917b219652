package chattypes

// TurnState is a step of the per-turn state machine:
// Idle -> AwaitingSearch (if enabled) -> AwaitingCompletion -> Streaming -> Committed,
// or Aborted on any propagated failure before the assistant message is appended.
type TurnState string

const (
	TurnIdle               TurnState = "idle"
	TurnAwaitingSearch     TurnState = "awaiting_search"
	TurnAwaitingCompletion TurnState = "awaiting_completion"
	TurnStreaming          TurnState = "streaming"
	TurnCommitted          TurnState = "committed"
	TurnAborted            TurnState = "aborted"
)

// TurnSink receives progress of a single turn for rendering.
// Calls happen on the goroutine running the turn, in order.
type TurnSink interface {
	// OnUserMessage is called once the user message has been appended.
	OnUserMessage(msg Message)
	// OnState is called on every state transition.
	OnState(state TurnState)
	// OnFragment is called once per fragment received from the completion service.
	OnFragment(fragment string)
	// OnCommitted is called with the assistant message after it is appended.
	OnCommitted(msg Message)
	// OnAborted is called when the turn fails after the user message was appended.
	OnAborted(err error)
}

// NopSink discards all turn notifications.
type NopSink struct{}

func (NopSink) OnUserMessage(Message) {}
func (NopSink) OnState(TurnState)     {}
func (NopSink) OnFragment(string)     {}
func (NopSink) OnCommitted(Message)   {}
func (NopSink) OnAborted(error)       {}

// TurnResult describes the outcome of one handled turn.
type TurnResult struct {
	State         TurnState
	UserMessage   Message
	Assistant     *Message // nil unless State is TurnCommitted
	FragmentCount int
	History       []Message
}
