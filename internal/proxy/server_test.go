package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"restyle/internal/config"
	"restyle/internal/domain"
	"restyle/internal/payload"
	"restyle/internal/upstream"
)

type stubTransformer struct {
	calls     int
	mediaType string
	imageURL  string
	err       error
}

func (s *stubTransformer) Transform(_ context.Context, _ []byte, mediaType string, _ time.Duration) (string, error) {
	s.calls++
	s.mediaType = mediaType
	if s.err != nil {
		return "", s.err
	}
	return s.imageURL, nil
}

func newTestServer(t *testing.T, stub *stubTransformer, apiKey string) *Server {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	return NewServer(logger, stub, config.UpstreamConfig{APIKey: apiKey}, config.ProxyConfig{
		UpstreamTimeout:     5 * time.Second,
		LongUpstreamTimeout: 10 * time.Second,
	})
}

func postTransform(t *testing.T, handler http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/transform", bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) domain.TransformResponse {
	t.Helper()
	var resp domain.TransformResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestProbeSkipsUpstream(t *testing.T) {
	stub := &stubTransformer{imageURL: "https://img.example/out.png"}
	srv := newTestServer(t, stub, "sk-live-key")

	rec := postTransform(t, srv.Handler(), domain.TransformRequest{Test: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("probe status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Fatal("probe should report success")
	}
	if stub.calls != 0 {
		t.Fatalf("probe reached the upstream %d times", stub.calls)
	}
}

func TestMissingCredentialRejectsBeforeUpstream(t *testing.T) {
	stub := &stubTransformer{imageURL: "https://img.example/out.png"}
	srv := newTestServer(t, stub, "your-api-key")

	rec := postTransform(t, srv.Handler(), domain.TransformRequest{
		Image: payload.Encode([]byte("\x89PNG\r\n\x1a\nrest"), "image/png"),
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Success {
		t.Fatal("expected failure response")
	}
	if !strings.Contains(resp.Error, "credential") {
		t.Fatalf("error %q should mention the credential", resp.Error)
	}
	if stub.calls != 0 {
		t.Fatalf("misconfigured server reached the upstream %d times", stub.calls)
	}
}

func TestTransformSuccess(t *testing.T) {
	stub := &stubTransformer{imageURL: "https://img.example/out.png"}
	srv := newTestServer(t, stub, "sk-live-key")

	rec := postTransform(t, srv.Handler(), domain.TransformRequest{
		Image: payload.Encode([]byte("\x89PNG\r\n\x1a\nrest"), "image/png"),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if !resp.Success || resp.ImageURL != "https://img.example/out.png" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if stub.mediaType != "image/png" {
		t.Fatalf("upstream received media type %q", stub.mediaType)
	}
}

func TestTransformRejectsNonDataURI(t *testing.T) {
	stub := &stubTransformer{}
	srv := newTestServer(t, stub, "sk-live-key")

	rec := postTransform(t, srv.Handler(), domain.TransformRequest{Image: "plainbase64=="})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if stub.calls != 0 {
		t.Fatal("undecodable payload should not reach the upstream")
	}
}

func TestTransformRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t, &stubTransformer{}, "sk-live-key")

	req := httptest.NewRequest(http.MethodPost, "/v1/transform", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTransformRejectsWrongMethod(t *testing.T) {
	srv := newTestServer(t, &stubTransformer{}, "sk-live-key")

	req := httptest.NewRequest(http.MethodGet, "/v1/transform", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestUpstreamStatusPassesThrough(t *testing.T) {
	stub := &stubTransformer{err: &upstream.StatusError{Status: http.StatusTooManyRequests, Message: "quota exceeded"}}
	srv := newTestServer(t, stub, "sk-live-key")

	rec := postTransform(t, srv.Handler(), domain.TransformRequest{
		Image: payload.Encode([]byte("\x89PNG\r\n\x1a\nrest"), "image/png"),
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if !strings.Contains(resp.Error, "rate limiting") {
		t.Fatalf("error %q should explain the rate limit", resp.Error)
	}
}

func TestUpstreamTimeoutMapsToGatewayTimeout(t *testing.T) {
	stub := &stubTransformer{err: context.DeadlineExceeded}
	srv := newTestServer(t, stub, "sk-live-key")

	rec := postTransform(t, srv.Handler(), domain.TransformRequest{
		Image: payload.Encode([]byte("\x89PNG\r\n\x1a\nrest"), "image/png"),
	})
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
}

func TestUpstreamNoImageMapsToServerError(t *testing.T) {
	stub := &stubTransformer{err: upstream.ErrNoImage}
	srv := newTestServer(t, stub, "sk-live-key")

	rec := postTransform(t, srv.Handler(), domain.TransformRequest{
		Image: payload.Encode([]byte("\x89PNG\r\n\x1a\nrest"), "image/png"),
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Success {
		t.Fatal("expected failure response")
	}
}

func TestPreflightAnsweredDirectly(t *testing.T) {
	srv := newTestServer(t, &stubTransformer{}, "sk-live-key")

	req := httptest.NewRequest(http.MethodOptions, "/v1/transform", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("preflight should allow any origin")
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &stubTransformer{}, "sk-live-key")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}
