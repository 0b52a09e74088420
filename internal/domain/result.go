package domain

import (
	"fmt"
	"net/http"
)

// Category is the closed set of failure categories surfaced to the end user.
type Category string

const (
	CategoryUnsupportedType     Category = "unsupported_type"
	CategoryInvalidImage        Category = "invalid_image"
	CategoryMisconfigured       Category = "misconfigured"
	CategoryUpstreamRejected    Category = "upstream_rejected"
	CategoryTimeout             Category = "timeout"
	CategoryConnectionExhausted Category = "connection_exhausted"
	CategoryNoImageProduced     Category = "no_image_produced"
	CategoryUnknown             Category = "unknown"
)

type Failure struct {
	Category Category
	Message  string

	// StatusCode carries the HTTP status the proxy should answer with when
	// the failure passes through it. Zero means "derive from category".
	StatusCode int
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Category, f.Message)
}

// Result is the single terminal outcome of one submission. A failed result
// carries a Failure and nothing else; a successful one carries the stylized
// image URL, except for connectivity probes which succeed without one.
type Result struct {
	ImageURL string
	Failure  *Failure
}

func Succeed(imageURL string) Result {
	return Result{ImageURL: imageURL}
}

func Fail(category Category, message string) Result {
	return Result{Failure: &Failure{Category: category, Message: message}}
}

func FailFrom(f Failure) Result {
	return Result{Failure: &f}
}

func (r Result) Succeeded() bool {
	return r.Failure == nil
}

// ClassifyStatus maps a definitive HTTP answer to a failure. The mapping is
// deterministic: 408/504 are timeouts, 413 and 429 are upstream rejections
// with specific messages, everything else 4xx/5xx is an upstream rejection
// carrying the server-provided message when one was parseable.
func ClassifyStatus(status int, serverMessage string) Failure {
	switch status {
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return Failure{
			Category:   CategoryTimeout,
			Message:    "the transformation took too long and was aborted",
			StatusCode: http.StatusGatewayTimeout,
		}
	case http.StatusRequestEntityTooLarge:
		return Failure{
			Category:   CategoryUpstreamRejected,
			Message:    "the image is too large for the transformation service",
			StatusCode: http.StatusRequestEntityTooLarge,
		}
	case http.StatusTooManyRequests:
		return Failure{
			Category:   CategoryUpstreamRejected,
			Message:    "the transformation service is rate limiting requests, try again in a moment",
			StatusCode: http.StatusTooManyRequests,
		}
	}

	if serverMessage != "" {
		return Failure{
			Category:   CategoryUpstreamRejected,
			Message:    serverMessage,
			StatusCode: status,
		}
	}
	return Failure{
		Category:   CategoryUpstreamRejected,
		Message:    fmt.Sprintf("the transformation service answered with status %d", status),
		StatusCode: status,
	}
}
