package testutils

import (
	"sync"

	"akashchat/pkg/chattypes"
)

// RecordingSink captures every TurnSink notification for assertions.
type RecordingSink struct {
	mu        sync.Mutex
	users     []chattypes.Message
	states    []chattypes.TurnState
	fragments []string
	committed []chattypes.Message
	aborted   []error

	// OnFragmentHook, when set, runs after each fragment is recorded.
	OnFragmentHook func(fragment string)
}

// NewRecordingSink creates an empty sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (r *RecordingSink) OnUserMessage(msg chattypes.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, msg)
}

func (r *RecordingSink) OnState(state chattypes.TurnState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *RecordingSink) OnFragment(fragment string) {
	r.mu.Lock()
	r.fragments = append(r.fragments, fragment)
	hook := r.OnFragmentHook
	r.mu.Unlock()
	if hook != nil {
		hook(fragment)
	}
}

func (r *RecordingSink) OnCommitted(msg chattypes.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msg)
}

func (r *RecordingSink) OnAborted(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborted = append(r.aborted, err)
}

// UserMessages returns the recorded user messages.
func (r *RecordingSink) UserMessages() []chattypes.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chattypes.Message(nil), r.users...)
}

// States returns the recorded state transitions.
func (r *RecordingSink) States() []chattypes.TurnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chattypes.TurnState(nil), r.states...)
}

// Fragments returns the recorded fragments in arrival order.
func (r *RecordingSink) Fragments() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fragments...)
}

// Committed returns the recorded assistant messages.
func (r *RecordingSink) Committed() []chattypes.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chattypes.Message(nil), r.committed...)
}

// Aborted returns the recorded abort errors.
func (r *RecordingSink) Aborted() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.aborted...)
}
