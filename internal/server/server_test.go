package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"akashchat/internal/observability"
	"akashchat/internal/services"
	"akashchat/internal/testutils"
	"akashchat/internal/version"
	"akashchat/pkg/chattypes"
)

type serverFixture struct {
	server     *Server
	sessions   *services.ChatSessionService
	completion *testutils.ScriptedCompletionClient
	search     *testutils.ScriptedSearchClient
}

func newServerFixture(t *testing.T, fragments ...string) *serverFixture {
	t.Helper()

	catalog := services.NewModelCatalogService("")
	require.NoError(t, catalog.Initialize())

	sessions := services.NewChatSessionService(time.Hour, chattypes.SessionSettings{SelectedModel: catalog.Default().ID})
	require.NoError(t, sessions.Initialize())

	completion := testutils.NewScriptedCompletionClient(fragments...)
	search := testutils.NewScriptedSearchClient("Title: t\nURL: u\nSnippet: s\n")
	registry := prometheus.NewRegistry()
	turns := services.NewTurnService(completion, search, observability.NewTurnMetrics(registry))
	require.NoError(t, turns.Initialize())

	srv := New(Options{
		Sessions:   sessions,
		Catalog:    catalog,
		Turns:      turns,
		Gatherer:   registry,
		SessionTTL: time.Hour,
	})

	return &serverFixture{server: srv, sessions: sessions, completion: completion, search: search}
}

func (f *serverFixture) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

// newSession returns the session cookie and session created by GET /api/session.
func (f *serverFixture) newSession(t *testing.T) (*http.Cookie, *chattypes.ChatSession) {
	t.Helper()
	rec := f.do(t, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	session, err := f.sessions.GetSession(cookie.Value)
	require.NoError(t, err)
	return cookie, session
}

type sseEvent struct {
	Type string
	Data json.RawMessage
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
		case line == "" && current.Type != "":
			events = append(events, current)
			current = sseEvent{}
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

func eventTypes(events []sseEvent) []string {
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func contentOf(t *testing.T, events []sseEvent, eventType string) string {
	t.Helper()
	var b strings.Builder
	for _, e := range events {
		if e.Type != eventType {
			continue
		}
		var payload map[string]string
		require.NoError(t, json.Unmarshal(e.Data, &payload))
		b.WriteString(payload["content"])
	}
	return b.String()
}

func TestServer_Health(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status      string `json:"status"`
		Version     string `json:"version"`
		Prerelease  bool   `json:"prerelease"`
		Development bool   `json:"development"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, version.GetVersion(), body.Version)
	assert.Equal(t, version.IsPrerelease(), body.Prerelease)
	assert.Equal(t, version.IsDevelopment(), body.Development)
}

func TestServer_ResetSessionKeepsSettings(t *testing.T) {
	f := newServerFixture(t, "4")
	cookie, session := f.newSession(t)
	session.SetSettings(chattypes.SessionSettings{SelectedModel: "Meta-Llama-3-3-70B-Instruct", WebSearchEnabled: true}, time.Now())
	session.AppendMessage(chattypes.Message{Role: chattypes.RoleUser, Content: "2+2="})

	rec := f.do(t, http.MethodDelete, "/api/session", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var newCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			newCookie = c
		}
	}
	require.NotNil(t, newCookie)
	assert.NotEqual(t, cookie.Value, newCookie.Value)

	_, err := f.sessions.GetSession(cookie.Value)
	assert.Error(t, err, "old session is dropped")
	assert.Equal(t, 1, f.sessions.Count())

	var body struct {
		SessionID string                    `json:"session_id"`
		Settings  chattypes.SessionSettings `json:"settings"`
		Messages  []chattypes.Message       `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, newCookie.Value, body.SessionID)
	assert.Equal(t, "Meta-Llama-3-3-70B-Instruct", body.Settings.SelectedModel)
	assert.True(t, body.Settings.WebSearchEnabled)
	assert.Empty(t, body.Messages)
}

func TestServer_ResetSessionRefusedDuringTurn(t *testing.T) {
	f := newServerFixture(t, "x")
	cookie, session := f.newSession(t)
	require.True(t, session.TryBeginTurn())
	defer session.EndTurn()

	rec := f.do(t, http.MethodDelete, "/api/session", "", cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)
	_, err := f.sessions.GetSession(cookie.Value)
	assert.NoError(t, err)
}

func TestServer_Index(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/api/chat")
}

func TestServer_Models(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Models  []chattypes.ModelCatalogEntry `json:"models"`
		Default string                        `json:"default"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Models, 4)
	assert.Equal(t, "DeepSeek-R1", body.Default)
}

func TestServer_SessionCookieIsReused(t *testing.T) {
	f := newServerFixture(t)
	cookie, session := f.newSession(t)

	rec := f.do(t, http.MethodGet, "/api/session", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	var body struct {
		SessionID          string                    `json:"session_id"`
		Settings           chattypes.SessionSettings `json:"settings"`
		WebSearchAvailable bool                      `json:"web_search_available"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, session.ID(), body.SessionID)
	assert.Equal(t, "DeepSeek-R1", body.Settings.SelectedModel)
	assert.False(t, body.Settings.WebSearchEnabled)
	assert.True(t, body.WebSearchAvailable)
	assert.Equal(t, 1, f.sessions.Count())
}

func TestServer_UpdateSettings(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		searchOff    bool
		expectedCode int
		expectedKind chattypes.ErrorKind
		check        func(t *testing.T, settings chattypes.SessionSettings)
	}{
		{
			name:         "select model case insensitive",
			body:         `{"model":"meta-llama-3-3-70b-instruct"}`,
			expectedCode: http.StatusOK,
			check: func(t *testing.T, settings chattypes.SessionSettings) {
				assert.Equal(t, "Meta-Llama-3-3-70B-Instruct", settings.SelectedModel)
			},
		},
		{
			name:         "unknown model",
			body:         `{"model":"gpt-9000"}`,
			expectedCode: http.StatusBadRequest,
			expectedKind: chattypes.KindUnsupportedModel,
			check: func(t *testing.T, settings chattypes.SessionSettings) {
				assert.Equal(t, "DeepSeek-R1", settings.SelectedModel)
			},
		},
		{
			name:         "enable web search",
			body:         `{"web_search":true}`,
			expectedCode: http.StatusOK,
			check: func(t *testing.T, settings chattypes.SessionSettings) {
				assert.True(t, settings.WebSearchEnabled)
			},
		},
		{
			name:         "web search not configured",
			body:         `{"web_search":true}`,
			searchOff:    true,
			expectedCode: http.StatusServiceUnavailable,
			expectedKind: chattypes.KindConfiguration,
			check: func(t *testing.T, settings chattypes.SessionSettings) {
				assert.False(t, settings.WebSearchEnabled)
			},
		},
		{
			name:         "malformed body",
			body:         `{"model":`,
			expectedCode: http.StatusBadRequest,
			expectedKind: chattypes.KindInputRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServerFixture(t)
			f.search.Unconfigured = tt.searchOff
			cookie, session := f.newSession(t)

			rec := f.do(t, http.MethodPut, "/api/session/settings", tt.body, cookie)
			assert.Equal(t, tt.expectedCode, rec.Code)

			if tt.expectedKind != "" {
				var body struct {
					Error ErrorPayload `json:"error"`
				}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.expectedKind, body.Error.Kind)
				assert.NotEmpty(t, body.Error.Message)
			}
			if tt.check != nil {
				tt.check(t, session.Settings())
			}
		})
	}
}

func TestServer_ChatStreamsTurn(t *testing.T) {
	f := newServerFixture(t, "<think>", "adding", "</think>", "The answer ", "is 4.")
	cookie, session := f.newSession(t)

	rec := f.do(t, http.MethodPost, "/api/chat", `{"message":"2+2="}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	types := eventTypes(events)
	assert.Equal(t, EventUser, types[0])
	assert.Equal(t, EventStatus, types[1])
	assert.Equal(t, EventDone, types[len(types)-1])
	assert.NotContains(t, types, EventError)

	assert.Equal(t, "<think>adding</think>The answer is 4.", contentOf(t, events, EventToken))
	assert.Equal(t, "adding", contentOf(t, events, EventThinking))
	assert.Equal(t, "The answer is 4.", contentOf(t, events, EventAnswer))

	var done struct {
		Message chattypes.Message `json:"message"`
	}
	require.NoError(t, json.Unmarshal(events[len(events)-1].Data, &done))
	assert.Equal(t, "<think>adding</think>The answer is 4.", done.Message.Content)

	history := session.Messages()
	require.Len(t, history, 2)
	assert.Equal(t, "2+2=", history[0].Content)
	assert.Equal(t, "2+2=", f.completion.LastCall().Messages[0].Content)
}

func TestServer_ChatWithSearchReportsStatus(t *testing.T) {
	f := newServerFixture(t, "Paris")
	cookie, session := f.newSession(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/session/settings", `{"web_search":true}`, cookie).Code)

	rec := f.do(t, http.MethodPost, "/api/chat", `{"message":"capital of France"}`, cookie)
	events := parseSSE(t, rec.Body.String())

	var statuses []string
	for _, e := range events {
		if e.Type == EventStatus {
			var payload map[string]string
			require.NoError(t, json.Unmarshal(e.Data, &payload))
			statuses = append(statuses, payload["status"])
		}
	}
	assert.Equal(t, []string{StatusSearching, StatusGenerating}, statuses)
	assert.Equal(t, "capital of France", session.Messages()[0].Content)
	assert.Equal(t, []string{"capital of France"}, f.search.Queries())
}

func TestServer_ChatRejectsEmptyInput(t *testing.T) {
	f := newServerFixture(t, "x")
	cookie, session := f.newSession(t)

	rec := f.do(t, http.MethodPost, "/api/chat", `{"message":"   "}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(chattypes.KindInputRejected))
	assert.Equal(t, 0, session.Len())
	assert.Equal(t, 0, f.completion.CallCount())
}

func TestServer_ChatRejectsConcurrentTurn(t *testing.T) {
	f := newServerFixture(t, "x")
	cookie, session := f.newSession(t)
	require.True(t, session.TryBeginTurn())
	defer session.EndTurn()

	rec := f.do(t, http.MethodPost, "/api/chat", `{"message":"hello"}`, cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 0, session.Len())
}

func TestServer_ChatSearchFailureSendsErrorEvent(t *testing.T) {
	f := newServerFixture(t, "never")
	cookie, session := f.newSession(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/session/settings", `{"web_search":true}`, cookie).Code)
	f.search.Err = errors.New("dial tcp: connection refused")

	rec := f.do(t, http.MethodPost, "/api/chat", `{"message":"news"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	events := parseSSE(t, rec.Body.String())
	last := events[len(events)-1]
	require.Equal(t, EventError, last.Type)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(last.Data, &payload))
	assert.Equal(t, chattypes.KindSearchFailure, payload.Kind)
	assert.True(t, payload.Retryable)
	assert.NotContains(t, payload.Message, "dial tcp")

	assert.Equal(t, 1, session.Len())
	assert.Equal(t, 0, f.completion.CallCount())
}

func TestServer_ChatMidStreamFailure(t *testing.T) {
	f := newServerFixture(t, "partial")
	f.completion.StreamErr = errors.New("reset")
	cookie, session := f.newSession(t)

	rec := f.do(t, http.MethodPost, "/api/chat", `{"message":"q"}`, cookie)
	events := parseSSE(t, rec.Body.String())
	types := eventTypes(events)

	assert.Contains(t, types, EventToken)
	assert.Equal(t, EventError, types[len(types)-1])
	assert.NotContains(t, types, EventDone)
	assert.Equal(t, 1, session.Len())
}

func TestServer_Metrics(t *testing.T) {
	f := newServerFixture(t, "ok")
	cookie, _ := f.newSession(t)
	f.do(t, http.MethodPost, "/api/chat", `{"message":"q"}`, cookie)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `akashchat_turn_turns_total{outcome="committed"} 1`)
}

func TestServer_WebSocketTurn(t *testing.T) {
	f := newServerFixture(t, "Hello", " there")
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	var first Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "session", first.Type)

	require.NoError(t, conn.WriteJSON(wsRequest{Type: wsSubmit, Message: "hi"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var types []string
	var tokens strings.Builder
	for {
		var raw struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&raw))
		types = append(types, raw.Type)
		if raw.Type == EventToken {
			var payload map[string]string
			require.NoError(t, json.Unmarshal(raw.Data, &payload))
			tokens.WriteString(payload["content"])
		}
		if raw.Type == EventDone || raw.Type == EventError {
			break
		}
	}

	assert.Equal(t, EventUser, types[0])
	assert.Equal(t, EventDone, types[len(types)-1])
	assert.Equal(t, "Hello there", tokens.String())
	assert.Equal(t, 1, f.sessions.Count())
}

func TestServer_WebSocketIgnoresEmptySubmit(t *testing.T) {
	f := newServerFixture(t, "ok")
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	var first Event
	require.NoError(t, conn.ReadJSON(&first))

	require.NoError(t, conn.WriteJSON(wsRequest{Type: wsSubmit, Message: "   "}))
	require.NoError(t, conn.WriteJSON(wsRequest{Type: wsSubmit, Message: "hi"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var types []string
	for {
		var raw struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&raw))
		types = append(types, raw.Type)
		if raw.Type == EventDone || raw.Type == EventError {
			break
		}
	}

	assert.Equal(t, EventUser, types[0], "no frame for the empty submit")
	assert.Equal(t, EventDone, types[len(types)-1])
	assert.NotContains(t, types, EventError)
	assert.Equal(t, 1, f.completion.CallCount())
}

func TestServer_WebSocketUnknownFrame(t *testing.T) {
	f := newServerFixture(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	var first Event
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	var raw struct {
		Type string       `json:"type"`
		Data ErrorPayload `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&raw))
	assert.Equal(t, EventError, raw.Type)
	assert.Equal(t, chattypes.KindInputRejected, raw.Data.Kind)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		kind     chattypes.ErrorKind
		expected int
	}{
		{chattypes.KindInputRejected, http.StatusBadRequest},
		{chattypes.KindUnsupportedModel, http.StatusBadRequest},
		{chattypes.KindTurnInProgress, http.StatusConflict},
		{chattypes.KindSearchFailure, http.StatusBadGateway},
		{chattypes.KindCompletionFailure, http.StatusBadGateway},
		{chattypes.KindConfiguration, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.expected, statusForError(chattypes.NewTurnError(tt.kind, "op", nil)))
		})
	}
	assert.Equal(t, http.StatusInternalServerError, statusForError(errors.New("plain")))
}

func TestSameOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://localhost:8501/api/ws", nil)
	assert.True(t, sameOrigin(req))

	req.Header.Set("Origin", "http://localhost:8501")
	assert.True(t, sameOrigin(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, sameOrigin(req))
}
