package services

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"akashchat/internal/logger"
	"akashchat/internal/version"
)

// maxCapturedExchanges bounds the in-memory capture ring.
const maxCapturedExchanges = 20

// maxCapturedBody bounds the size of a captured request or response body.
const maxCapturedBody = 8 << 10

// DebugTransportService builds the HTTP clients used by the search and
// completion adapters. When capture is enabled it records sanitized
// request/response exchanges for the debug log.
type DebugTransportService struct {
	capture bool
	base    http.RoundTripper

	mutex     sync.RWMutex
	exchanges []string
}

// NewDebugTransportService creates a transport service. base may be nil.
func NewDebugTransportService(capture bool, base http.RoundTripper) *DebugTransportService {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransportService{
		capture: capture,
		base:    base,
	}
}

// Name returns the service name "debug-transport" for registration.
func (d *DebugTransportService) Name() string {
	return "debug-transport"
}

// Initialize resets captured data.
func (d *DebugTransportService) Initialize() error {
	d.ClearCapturedData()
	logger.ServiceOperation("debug-transport", "initialize", "capture", d.capture)
	return nil
}

// NewClient returns an HTTP client with the given overall timeout.
// A zero timeout leaves the client unbounded; streaming callers rely on ctx instead.
func (d *DebugTransportService) NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: d.CreateTransport(),
	}
}

// CreateTransport returns a RoundTripper that stamps the User-Agent and,
// when capture is enabled, records each exchange.
func (d *DebugTransportService) CreateTransport() http.RoundTripper {
	return &debugTransport{
		base:    d.base,
		service: d,
	}
}

// CapturedData returns captured exchanges as JSON strings, oldest first.
func (d *DebugTransportService) CapturedData() []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	out := make([]string, len(d.exchanges))
	copy(out, d.exchanges)
	return out
}

// ClearCapturedData clears the captured debug data.
func (d *DebugTransportService) ClearCapturedData() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.exchanges = nil
}

func (d *DebugTransportService) store(data string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.exchanges = append(d.exchanges, data)
	if len(d.exchanges) > maxCapturedExchanges {
		d.exchanges = d.exchanges[len(d.exchanges)-maxCapturedExchanges:]
	}
}

// debugTransport implements http.RoundTripper with request/response capture.
type debugTransport struct {
	base    http.RoundTripper
	service *DebugTransportService
}

// RoundTrip implements http.RoundTripper.
func (dt *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", version.UserAgent())
	}

	if !dt.service.capture {
		return dt.base.RoundTrip(req)
	}

	startTime := time.Now()
	requestData := dt.captureRequest(req)

	resp, err := dt.base.RoundTrip(req)
	endTime := time.Now()

	responseData := map[string]interface{}{}
	if err != nil {
		responseData["error"] = err.Error()
	} else {
		responseData = dt.captureResponse(resp)
	}

	dt.storeDebugData(requestData, responseData, startTime, endTime)
	return resp, err
}

func (dt *debugTransport) captureRequest(req *http.Request) map[string]interface{} {
	requestData := map[string]interface{}{
		"method":  req.Method,
		"url":     req.URL.String(),
		"headers": sanitizeHeaders(req.Header),
	}

	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err == nil {
			bodyBytes, _ := io.ReadAll(io.LimitReader(body, maxCapturedBody))
			_ = body.Close()
			requestData["body"] = decodeBody(bodyBytes)
		}
	}

	return requestData
}

// captureResponse records headers always and the body only for
// non-streaming responses, restoring the body for the caller.
func (dt *debugTransport) captureResponse(resp *http.Response) map[string]interface{} {
	responseData := map[string]interface{}{
		"status_code": resp.StatusCode,
		"status":      resp.Status,
		"headers":     sanitizeHeaders(resp.Header),
	}

	if resp.Body == nil || strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		responseData["body"] = "[streamed]"
		return responseData
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	if err != nil {
		responseData["body_error"] = err.Error()
		return responseData
	}

	if len(bodyBytes) > maxCapturedBody {
		bodyBytes = bodyBytes[:maxCapturedBody]
	}
	responseData["body"] = decodeBody(bodyBytes)
	return responseData
}

func (dt *debugTransport) storeDebugData(requestData, responseData map[string]interface{}, startTime, endTime time.Time) {
	debugData := map[string]interface{}{
		"http_request":  requestData,
		"http_response": responseData,
		"timing": map[string]interface{}{
			"request_time":  startTime.Format(time.RFC3339),
			"response_time": endTime.Format(time.RFC3339),
			"duration_ms":   endTime.Sub(startTime).Milliseconds(),
		},
	}

	jsonData, err := json.Marshal(debugData)
	if err != nil {
		logger.Error("Failed to marshal debug data", "error", err)
		return
	}

	dt.service.store(string(jsonData))
	logger.Debug("HTTP exchange captured", "data", string(jsonData))
}

func decodeBody(bodyBytes []byte) interface{} {
	if len(bodyBytes) == 0 {
		return nil
	}
	var jsonBody interface{}
	if err := json.Unmarshal(bodyBytes, &jsonBody); err == nil {
		return jsonBody
	}
	return string(bodyBytes)
}

// sanitizeHeaders masks credentials in headers.
func sanitizeHeaders(headers http.Header) map[string]interface{} {
	sanitized := make(map[string]interface{})

	for name, values := range headers {
		lowerName := strings.ToLower(name)

		if strings.Contains(lowerName, "authorization") ||
			strings.Contains(lowerName, "api-key") ||
			strings.Contains(lowerName, "token") {
			sanitized[name] = []string{"***[MASKED]***"}
		} else {
			sanitized[name] = values
		}
	}

	return sanitized
}
