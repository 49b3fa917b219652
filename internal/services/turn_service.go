package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"akashchat/internal/logger"
	"akashchat/internal/observability"
	"akashchat/pkg/chattypes"
)

const (
	searchContextPrefix = "Web search results:\n"
	searchContextSuffix = "\n\nBased on this information: "
)

// TurnService runs one user turn at a time per session: optional web search,
// prompt augmentation, streaming completion and the commit of the answer.
type TurnService struct {
	completion chattypes.CompletionClient
	search     chattypes.SearchClient
	metrics    *observability.TurnMetrics

	now   func() time.Time
	newID func() string
}

// NewTurnService creates a turn controller. search may be nil when web search
// is not configured; metrics may be nil.
func NewTurnService(completion chattypes.CompletionClient, search chattypes.SearchClient, metrics *observability.TurnMetrics) *TurnService {
	return &TurnService{
		completion: completion,
		search:     search,
		metrics:    metrics,
		now:        time.Now,
		newID:      NewMessageID,
	}
}

// Name returns the service name "turn" for registration.
func (t *TurnService) Name() string {
	return "turn"
}

// Initialize checks that a completion client is present.
func (t *TurnService) Initialize() error {
	if t.completion == nil {
		return chattypes.NewTurnError(chattypes.KindConfiguration, "turn service", fmt.Errorf("no completion client"))
	}
	logger.ServiceOperation("turn", "initialize", "web_search", t.SearchAvailable())
	return nil
}

// SetClock replaces the time source and message id generator, for tests.
func (t *TurnService) SetClock(now func() time.Time, newID func() string) {
	if now != nil {
		t.now = now
	}
	if newID != nil {
		t.newID = newID
	}
}

// SearchAvailable reports whether turns may enable web search.
func (t *TurnService) SearchAvailable() bool {
	return t.search != nil && t.search.IsConfigured()
}

// BuildContextBlock wraps formatted search results into the prefix placed
// in front of the user's text in the outgoing request.
func BuildContextBlock(results string) string {
	return searchContextPrefix + results + searchContextSuffix
}

// BuildOutgoingMessages returns the request conversation: every prior message
// followed by one user message carrying the augmented prompt. The stored
// history is never modified.
func BuildOutgoingMessages(prior []chattypes.Message, augmented string) []chattypes.Message {
	outgoing := make([]chattypes.Message, 0, len(prior)+1)
	for _, msg := range prior {
		outgoing = append(outgoing, chattypes.Message{Role: msg.Role, Content: msg.Content})
	}
	return append(outgoing, chattypes.Message{Role: chattypes.RoleUser, Content: augmented})
}

// turnRun carries the mutable state of a single HandleUserTurn call.
type turnRun struct {
	session *chattypes.ChatSession
	sink    chattypes.TurnSink
	state   chattypes.TurnState
	span    trace.Span
}

func (r *turnRun) transition(to chattypes.TurnState) {
	logger.TurnTransition(r.session.ID(), string(r.state), string(to))
	r.state = to
	r.sink.OnState(to)
}

// HandleUserTurn runs one turn for session and reports progress to sink.
//
// Empty input is rejected with InputRejected and a concurrent submission with
// TurnInProgress; neither touches the history. Otherwise the user message is
// appended immediately. The assistant message is appended only when the
// completion stream ends cleanly; any failure before that aborts the turn and
// leaves the user message as the last entry.
func (t *TurnService) HandleUserTurn(ctx context.Context, rawText string, session *chattypes.ChatSession, sink chattypes.TurnSink) (*chattypes.TurnResult, error) {
	if sink == nil {
		sink = chattypes.NopSink{}
	}

	if strings.TrimSpace(rawText) == "" {
		t.metrics.TurnRejected(string(chattypes.KindInputRejected))
		return nil, chattypes.NewTurnError(chattypes.KindInputRejected, "submit", fmt.Errorf("message is empty"))
	}
	if session == nil {
		return nil, chattypes.NewTurnError(chattypes.KindConfiguration, "submit", fmt.Errorf("no session"))
	}
	if !session.TryBeginTurn() {
		t.metrics.TurnRejected(string(chattypes.KindTurnInProgress))
		return nil, chattypes.NewTurnError(chattypes.KindTurnInProgress, "submit", fmt.Errorf("a response is still being generated"))
	}
	defer session.EndTurn()

	settings := session.Settings()
	started := t.now()
	t.metrics.TurnStarted()

	ctx, span := observability.Tracer().Start(ctx, "turn",
		trace.WithAttributes(
			attribute.String("session", session.ID()),
			attribute.String("model", settings.SelectedModel),
			attribute.Bool("web_search", settings.WebSearchEnabled),
		))
	defer span.End()

	run := &turnRun{session: session, sink: sink, state: chattypes.TurnIdle, span: span}

	prior := session.Messages()
	userMsg := chattypes.Message{
		ID:        t.newID(),
		Role:      chattypes.RoleUser,
		Content:   rawText,
		Timestamp: t.now(),
	}
	session.AppendMessage(userMsg)
	sink.OnUserMessage(userMsg)

	logger.Debug("Turn started", "session", session.ID(), "model", settings.SelectedModel,
		"web_search", settings.WebSearchEnabled, "prompt_length", len(rawText))

	contextBlock := ""
	if settings.WebSearchEnabled {
		run.transition(chattypes.TurnAwaitingSearch)
		results, err := t.runSearch(ctx, rawText)
		if err != nil {
			return t.abort(run, userMsg, started, 0, err)
		}
		contextBlock = BuildContextBlock(results)
	}

	run.transition(chattypes.TurnAwaitingCompletion)
	outgoing := BuildOutgoingMessages(prior, contextBlock+rawText)

	content, fragments, err := t.runCompletion(ctx, run, settings.SelectedModel, outgoing)
	if err != nil {
		return t.abort(run, userMsg, started, fragments, err)
	}

	assistant := chattypes.Message{
		ID:        t.newID(),
		Role:      chattypes.RoleAssistant,
		Content:   content,
		Timestamp: t.now(),
	}
	session.AppendMessage(assistant)
	run.transition(chattypes.TurnCommitted)
	sink.OnCommitted(assistant)

	span.SetAttributes(
		attribute.Int("fragments", fragments),
		attribute.String("outcome", observability.OutcomeCommitted),
	)
	t.metrics.TurnFinished(observability.OutcomeCommitted, t.now().Sub(started))
	logger.Debug("Turn committed", "session", session.ID(), "fragments", fragments, "answer_length", len(content))

	return &chattypes.TurnResult{
		State:         chattypes.TurnCommitted,
		UserMessage:   userMsg,
		Assistant:     &assistant,
		FragmentCount: fragments,
		History:       session.Messages(),
	}, nil
}

func (t *TurnService) runSearch(ctx context.Context, query string) (string, error) {
	ctx, span := observability.Tracer().Start(ctx, "search")
	defer span.End()

	if !t.SearchAvailable() {
		err := chattypes.NewTurnError(chattypes.KindConfiguration, "search", fmt.Errorf("web search is not configured"))
		span.RecordError(err)
		span.SetStatus(codes.Error, "not configured")
		return "", err
	}

	started := t.now()
	results, err := t.search.Search(ctx, query)
	if err != nil {
		t.metrics.ObserveSearch("error", t.now().Sub(started))
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		if chattypes.KindOf(err) == "" {
			err = chattypes.NewTurnError(chattypes.KindSearchFailure, "search", err)
		}
		return "", err
	}

	t.metrics.ObserveSearch("ok", t.now().Sub(started))
	span.SetAttributes(attribute.Int("results_length", len(results)))
	return results, nil
}

func (t *TurnService) runCompletion(ctx context.Context, run *turnRun, model string, outgoing []chattypes.Message) (string, int, error) {
	ctx, span := observability.Tracer().Start(ctx, "completion",
		trace.WithAttributes(attribute.String("model", model), attribute.Int("messages", len(outgoing))))
	defer span.End()

	requested := t.now()
	stream, err := t.completion.StreamChatCompletion(ctx, model, outgoing)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open stream")
		return "", 0, completionError("open stream", err)
	}

	run.transition(chattypes.TurnStreaming)

	var builder strings.Builder
	fragments := 0
	for {
		select {
		case <-ctx.Done():
			err := chattypes.NewTurnError(chattypes.KindCompletionFailure, "stream", ctx.Err())
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			return "", fragments, err

		case chunk, ok := <-stream:
			if !ok {
				err := chattypes.NewTurnError(chattypes.KindCompletionFailure, "stream", fmt.Errorf("stream closed before completion"))
				span.RecordError(err)
				span.SetStatus(codes.Error, "closed early")
				return "", fragments, err
			}
			if chunk.Content != "" {
				if fragments == 0 {
					t.metrics.ObserveFirstFragment(model, t.now().Sub(requested))
				}
				fragments++
				t.metrics.RecordFragment(model)
				builder.WriteString(chunk.Content)
				run.sink.OnFragment(chunk.Content)
			}
			if chunk.Done {
				if chunk.Error != nil {
					err := completionError("stream", chunk.Error)
					span.RecordError(err)
					span.SetStatus(codes.Error, "stream failed")
					return "", fragments, err
				}
				span.SetAttributes(attribute.Int("fragments", fragments))
				return builder.String(), fragments, nil
			}
		}
	}
}

func (t *TurnService) abort(run *turnRun, userMsg chattypes.Message, started time.Time, fragments int, err error) (*chattypes.TurnResult, error) {
	kind := chattypes.KindOf(err)
	run.transition(chattypes.TurnAborted)
	run.sink.OnAborted(err)

	run.span.RecordError(err)
	run.span.SetStatus(codes.Error, string(kind))
	run.span.SetAttributes(
		attribute.Int("fragments", fragments),
		attribute.String("outcome", observability.OutcomeAborted),
	)
	t.metrics.RecordError(string(kind))
	t.metrics.TurnFinished(observability.OutcomeAborted, t.now().Sub(started))
	logger.Warn("Turn aborted", "session", run.session.ID(), "error", err)

	return &chattypes.TurnResult{
		State:         chattypes.TurnAborted,
		UserMessage:   userMsg,
		FragmentCount: fragments,
		History:       run.session.Messages(),
	}, err
}
