package server

import (
	"akashchat/internal/services"
	"akashchat/pkg/chattypes"
)

// Event types pushed to the browser over SSE or websocket.
const (
	EventUser     = "user"
	EventStatus   = "status"
	EventToken    = "token"
	EventThinking = "thinking"
	EventAnswer   = "answer"
	EventError    = "error"
	EventDone     = "done"
)

// Status values carried by EventStatus.
const (
	StatusSearching  = "searching"
	StatusGenerating = "generating"
)

// Event is one server-to-browser notification.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ErrorPayload is the data of an EventError.
type ErrorPayload struct {
	Kind      chattypes.ErrorKind `json:"kind"`
	Message   string              `json:"message"`
	Retryable bool                `json:"retryable"`
}

// EventWriter delivers events to one client.
type EventWriter interface {
	WriteEvent(event Event) error
}

// eventSink adapts the turn controller's callbacks to client events.
// Write failures are logged once and further writes are skipped; the turn
// itself is stopped by request context cancellation.
type eventSink struct {
	writer   EventWriter
	splitter *services.ThinkSplitter
	failed   bool
}

func newEventSink(writer EventWriter, splitter *services.ThinkSplitter) *eventSink {
	return &eventSink{writer: writer, splitter: splitter}
}

func (s *eventSink) emit(eventType string, data interface{}) {
	if s.failed {
		return
	}
	if err := s.writer.WriteEvent(Event{Type: eventType, Data: data}); err != nil {
		s.failed = true
		serverLog.Debug("Client write failed", "event", eventType, "error", err)
	}
}

func (s *eventSink) OnUserMessage(msg chattypes.Message) {
	s.emit(EventUser, msg)
}

func (s *eventSink) OnState(state chattypes.TurnState) {
	switch state {
	case chattypes.TurnAwaitingSearch:
		s.emit(EventStatus, map[string]string{"status": StatusSearching, "message": "Searching the web..."})
	case chattypes.TurnAwaitingCompletion:
		s.emit(EventStatus, map[string]string{"status": StatusGenerating, "message": "Generating response..."})
	}
}

func (s *eventSink) OnFragment(fragment string) {
	s.emit(EventToken, map[string]string{"content": fragment})
	s.emitSegments(s.splitter.Push(fragment))
}

func (s *eventSink) OnCommitted(msg chattypes.Message) {
	s.emitSegments(s.splitter.Flush())
	s.emit(EventDone, map[string]interface{}{"message": msg})
}

func (s *eventSink) OnAborted(err error) {
	s.emit(EventError, errorPayload(err))
}

func (s *eventSink) emitSegments(segments []services.Segment) {
	for _, seg := range segments {
		eventType := EventAnswer
		if seg.Kind == services.SegmentThinking {
			eventType = EventThinking
		}
		s.emit(eventType, map[string]string{"content": seg.Text})
	}
}
