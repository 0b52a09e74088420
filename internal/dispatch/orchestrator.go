// Package dispatch owns the client-to-proxy call: per-attempt timeouts,
// retry with exponential backoff on transport failures, and a one-shot
// reroute to a long-running fallback endpoint when the primary times out on
// the first attempt. A well-formed HTTP answer, success or error, is always
// terminal: the server has spoken and retrying would not change its mind.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"restyle/internal/domain"
)

const (
	DefaultAttemptTimeout  = 90 * time.Second
	DefaultFallbackTimeout = 300 * time.Second
	DefaultMaxRetries      = 2
	DefaultInitialBackoff  = 500 * time.Millisecond
	DefaultMaxBackoff      = 8 * time.Second
)

type Config struct {
	PrimaryURL  string
	FallbackURL string

	// AttemptTimeout bounds each try against the primary endpoint.
	// FallbackTimeout bounds the single long-running fallback attempt and
	// must be at least as generous as AttemptTimeout to be worth taking.
	AttemptTimeout  time.Duration
	FallbackTimeout time.Duration

	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Orchestrator struct {
	httpClient      *http.Client
	logger          *log.Logger
	primaryURL      string
	fallbackURL     string
	attemptTimeout  time.Duration
	fallbackTimeout time.Duration
	maxRetries      int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
}

// Attempt records one network try. It only drives retry/fallback decisions
// and diagnostic logging; callers never see it.
type Attempt struct {
	Route   string
	Elapsed time.Duration
	Outcome string
}

func New(cfg Config, logger *log.Logger) (*Orchestrator, error) {
	if strings.TrimSpace(cfg.PrimaryURL) == "" {
		return nil, errors.New("primary endpoint is required")
	}

	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	fallbackTimeout := cfg.FallbackTimeout
	if fallbackTimeout <= 0 {
		fallbackTimeout = DefaultFallbackTimeout
	}
	if fallbackTimeout < attemptTimeout {
		fallbackTimeout = attemptTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = DefaultInitialBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff < initialBackoff {
		maxBackoff = initialBackoff
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Orchestrator{
		httpClient:      &http.Client{},
		logger:          logger,
		primaryURL:      strings.TrimSpace(cfg.PrimaryURL),
		fallbackURL:     strings.TrimSpace(cfg.FallbackURL),
		attemptTimeout:  attemptTimeout,
		fallbackTimeout: fallbackTimeout,
		maxRetries:      maxRetries,
		initialBackoff:  initialBackoff,
		maxBackoff:      maxBackoff,
	}, nil
}

type verdict int

const (
	verdictTerminal verdict = iota
	verdictTimeout
	verdictRetry
)

// Dispatch sends the request and drives it to a terminal Result. The state
// machine is: primary attempt, then either one fallback attempt (first-try
// timeout only) or backoff-retries of the primary on transport failures, up
// to the configured maximum.
func (o *Orchestrator) Dispatch(ctx context.Context, req domain.TransformRequest) domain.Result {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.Fail(domain.CategoryUnknown, fmt.Sprintf("encode request: %v", err))
	}

	route := o.primaryURL
	timeout := o.attemptTimeout
	firstAttempt := true
	retries := 0
	backoff := o.initialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return domain.Fail(domain.CategoryTimeout, "the submission was cancelled before completing")
		}

		started := time.Now()
		result, v := o.attempt(ctx, route, timeout, body, req.Test)
		o.logAttempt(Attempt{
			Route:   route,
			Elapsed: time.Since(started),
			Outcome: outcomeLabel(result, v),
		})

		switch v {
		case verdictTerminal:
			return result

		case verdictTimeout:
			// Reroute to the long-running endpoint instead of retrying the
			// primary, but only once and only when the very first attempt
			// timed out.
			if firstAttempt && o.fallbackURL != "" {
				firstAttempt = false
				route = o.fallbackURL
				timeout = o.fallbackTimeout
				continue
			}
			return domain.FailFrom(domain.Failure{
				Category:   domain.CategoryTimeout,
				Message:    "the transformation took too long and was aborted",
				StatusCode: http.StatusGatewayTimeout,
			})

		case verdictRetry:
			if retries >= o.maxRetries {
				return domain.Fail(domain.CategoryConnectionExhausted,
					fmt.Sprintf("could not reach the transformation service after %d attempts", retries+1))
			}
			retries++
			firstAttempt = false

			select {
			case <-ctx.Done():
				return domain.Fail(domain.CategoryTimeout, "the submission was cancelled before completing")
			case <-time.After(backoff):
			}
			backoff = minDuration(backoff*2, o.maxBackoff)
		}
	}
}

// attempt performs one POST against route under the given timeout and
// classifies what came back.
func (o *Orchestrator) attempt(ctx context.Context, route string, timeout time.Duration, body []byte, probe bool) (domain.Result, verdict) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, route, bytes.NewReader(body))
	if err != nil {
		return domain.Fail(domain.CategoryUnknown, fmt.Sprintf("build request: %v", err)), verdictTerminal
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return domain.Result{}, verdictTimeout
		}
		// The request never reached or was never answered by the server.
		return domain.Result{}, verdictRetry
	}
	defer resp.Body.Close()

	return decodeProxyResponse(resp, probe), verdictTerminal
}

// decodeProxyResponse maps the proxy's stable wire shape onto a Result. The
// proxy has already normalized the upstream shapes, so anything other than
// {success:true, imageUrl} is a definitive failure. Probes are the one
// exception: their success carries no image.
func decodeProxyResponse(resp *http.Response, probe bool) domain.Result {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return domain.Fail(domain.CategoryUnknown, fmt.Sprintf("read response: %v", err))
	}

	var decoded domain.TransformResponse
	parseErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serverMessage := ""
		if parseErr == nil {
			serverMessage = decoded.Error
		}
		return domain.FailFrom(domain.ClassifyStatus(resp.StatusCode, serverMessage))
	}

	if parseErr != nil {
		return domain.Fail(domain.CategoryUnknown, fmt.Sprintf("unparseable response: %v", parseErr))
	}
	if probe && decoded.Success {
		return domain.Succeed("")
	}
	if !decoded.Success || decoded.ImageURL == "" {
		message := decoded.Error
		if message == "" {
			message = "the service answered without a generated image"
		}
		return domain.Fail(domain.CategoryNoImageProduced, message)
	}
	return domain.Succeed(decoded.ImageURL)
}

func (o *Orchestrator) logAttempt(a Attempt) {
	o.logger.Printf("dispatch attempt route=%s elapsed=%s outcome=%s", a.Route, a.Elapsed.Round(time.Millisecond), a.Outcome)
}

func outcomeLabel(result domain.Result, v verdict) string {
	switch v {
	case verdictTimeout:
		return "timeout"
	case verdictRetry:
		return "transport_error"
	default:
		if result.Succeeded() {
			return "success"
		}
		if result.Failure != nil {
			return string(result.Failure.Category)
		}
		return "unknown"
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
