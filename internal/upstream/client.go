// Package upstream talks to the external image-generation service. It
// shapes the outbound multipart request (image, style directive, output
// parameters) and normalizes the service's heterogeneous response shapes
// into a single displayable image reference.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultModel      = "gpt-image-1"
	DefaultOutputSize = "1024x1024"
	DefaultQuality    = "medium"

	editsPath = "/v1/images/edits"
)

type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	StyleDirective string
	OutputSize     string
	Quality        string
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	directive  string
	outputSize string
	quality    string
}

// StatusError is a definitive answer from the upstream service: an HTTP
// error response that was parsed far enough to carry forward verbatim.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status=%d: %s", e.Status, e.Message)
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("upstream base URL is required")
	}
	if strings.TrimSpace(cfg.StyleDirective) == "" {
		return nil, errors.New("style directive is required")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	outputSize := cfg.OutputSize
	if outputSize == "" {
		outputSize = DefaultOutputSize
	}
	quality := cfg.Quality
	if quality == "" {
		quality = DefaultQuality
	}

	return &Client{
		// Timeouts are enforced per call through the request context so the
		// standard and long-running routes can carry different budgets.
		httpClient: &http.Client{},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      model,
		directive:  cfg.StyleDirective,
		outputSize: outputSize,
		quality:    quality,
	}, nil
}

// Transform submits the image with the fixed style directive and returns a
// displayable reference to the generated image: a remote URL or a data URI,
// depending on which shape the upstream answered with.
func (c *Client) Transform(ctx context.Context, image []byte, mediaType string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, contentType, err := c.buildMultipartBody(image, mediaType)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+editsPath, body)
	if err != nil {
		return "", fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call upstream: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return "", fmt.Errorf("read upstream response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Status: resp.StatusCode, Message: parseErrorMessage(raw)}
	}

	imageRef, observed, err := Normalize(raw)
	if err != nil {
		return "", fmt.Errorf("%w (observed shapes: %s)", err, strings.Join(observed, ", "))
	}
	return imageRef, nil
}

func (c *Client) buildMultipartBody(image []byte, mediaType string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", filenameForMediaType(mediaType))
	if err != nil {
		return nil, "", fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("write image part: %w", err)
	}

	fields := map[string]string{
		"model":   c.model,
		"prompt":  c.directive,
		"n":       "1",
		"size":    c.outputSize,
		"quality": c.quality,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

func filenameForMediaType(mediaType string) string {
	switch mediaType {
	case "image/png":
		return "source.png"
	case "image/gif":
		return "source.gif"
	default:
		return "source.jpg"
	}
}
