// Package proxy is the server-side half of the pipeline. It keeps the
// upstream credential away from clients, reshapes transport payloads into
// upstream multipart requests, and answers every call with the stable
// {success, imageUrl | error} contract no matter which upstream shape or
// failure produced it.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"restyle/internal/config"
	"restyle/internal/domain"
	"restyle/internal/id"
	"restyle/internal/payload"
	"restyle/internal/upstream"
)

type Server struct {
	logger      *log.Logger
	upstream    transformer
	upstreamCfg config.UpstreamConfig
	timeout     time.Duration
	longTimeout time.Duration
	metrics     *metrics
	tracer      trace.Tracer
	mux         *http.ServeMux
}

type transformer interface {
	Transform(ctx context.Context, image []byte, mediaType string, timeout time.Duration) (string, error)
}

func NewServer(logger *log.Logger, upstreamClient transformer, upstreamCfg config.UpstreamConfig, proxyCfg config.ProxyConfig) *Server {
	timeout := proxyCfg.UpstreamTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	longTimeout := proxyCfg.LongUpstreamTimeout
	if longTimeout < timeout {
		longTimeout = timeout
	}

	s := &Server{
		logger:      logger,
		upstream:    upstreamClient,
		upstreamCfg: upstreamCfg,
		timeout:     timeout,
		longTimeout: longTimeout,
		metrics:     newMetrics(),
		tracer:      otel.Tracer("restyle/proxy"),
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return withCORS(s.metrics.withHTTPMetrics(s.withTracing(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/transform", func(w http.ResponseWriter, r *http.Request) {
		s.handleTransform(w, r, s.timeout)
	})
	s.mux.HandleFunc("POST /v1/transform/long", func(w http.ResponseWriter, r *http.Request) {
		s.handleTransform(w, r, s.longTimeout)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request, upstreamTimeout time.Duration) {
	requestID := id.New()

	var req domain.TransformRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logger.Printf("bad request id=%s err=%v", requestID, err)
		writeFailure(w, domain.Failure{
			Category:   domain.CategoryUnknown,
			Message:    err.Error(),
			StatusCode: http.StatusBadRequest,
		})
		return
	}

	// Connectivity probe: acknowledge without touching the upstream.
	if req.Test {
		s.logger.Printf("probe id=%s", requestID)
		writeJSON(w, http.StatusOK, domain.TransformResponse{Success: true})
		return
	}

	if req.Image == "" {
		writeFailure(w, domain.Failure{
			Category:   domain.CategoryUnknown,
			Message:    "request body must include an image payload",
			StatusCode: http.StatusBadRequest,
		})
		return
	}

	if !s.upstreamCfg.CredentialConfigured() {
		s.logger.Printf("rejecting id=%s: upstream credential missing or placeholder", requestID)
		s.metrics.failureTotal.WithLabelValues(string(domain.CategoryMisconfigured)).Inc()
		writeFailure(w, domain.Failure{
			Category:   domain.CategoryMisconfigured,
			Message:    "the transformation service credential is not configured",
			StatusCode: http.StatusInternalServerError,
		})
		return
	}

	image, mediaType, err := payload.Decode(req.Image)
	if err != nil {
		writeFailure(w, domain.Failure{
			Category:   domain.CategoryInvalidImage,
			Message:    "the image payload could not be decoded",
			StatusCode: http.StatusBadRequest,
		})
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "proxy.transform", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("image.media_type", mediaType),
		attribute.Int("image.bytes", len(image)),
	)
	defer span.End()

	started := time.Now()
	imageRef, err := s.upstream.Transform(ctx, image, mediaType, upstreamTimeout)
	elapsed := time.Since(started)

	if err != nil {
		failure := s.classifyUpstreamError(err)
		s.logger.Printf("upstream failed id=%s elapsed=%s category=%s err=%v", requestID, elapsed.Round(time.Millisecond), failure.Category, err)
		s.metrics.upstreamCallsTotal.WithLabelValues("failure").Inc()
		s.metrics.failureTotal.WithLabelValues(string(failure.Category)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(failure.Category))
		writeFailure(w, failure)
		return
	}

	s.logger.Printf("transformed id=%s elapsed=%s", requestID, elapsed.Round(time.Millisecond))
	s.metrics.upstreamCallsTotal.WithLabelValues("success").Inc()
	span.SetStatus(codes.Ok, "transformed")
	writeJSON(w, http.StatusOK, domain.TransformResponse{Success: true, ImageURL: imageRef})
}

// classifyUpstreamError folds the upstream client's error surface into the
// bounded failure taxonomy. Definitive upstream answers keep their status
// and message; everything else collapses to timeout or unknown.
func (s *Server) classifyUpstreamError(err error) domain.Failure {
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		return domain.ClassifyStatus(statusErr.Status, statusErr.Message)
	}

	if errors.Is(err, upstream.ErrNoImage) {
		return domain.Failure{
			Category:   domain.CategoryNoImageProduced,
			Message:    err.Error(),
			StatusCode: http.StatusInternalServerError,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Failure{
			Category:   domain.CategoryTimeout,
			Message:    "the transformation took too long and was aborted",
			StatusCode: http.StatusGatewayTimeout,
		}
	}

	return domain.Failure{
		Category:   domain.CategoryUnknown,
		Message:    "could not reach the transformation service",
		StatusCode: http.StatusInternalServerError,
	}
}

func writeFailure(w http.ResponseWriter, f domain.Failure) {
	status := f.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, domain.TransformResponse{Success: false, Error: f.Message})
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 64 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
