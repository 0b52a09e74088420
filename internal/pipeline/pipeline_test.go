package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"strings"
	"testing"

	"restyle/internal/domain"
	"restyle/internal/payload"
	"restyle/internal/preprocess"
)

type captureDispatcher struct {
	calls   int
	lastReq domain.TransformRequest
	result  domain.Result
}

func (d *captureDispatcher) Dispatch(_ context.Context, req domain.TransformRequest) domain.Result {
	d.calls++
	d.lastReq = req
	return d.result
}

func newTestProcessor(t *testing.T, dispatcher Dispatcher) *Processor {
	t.Helper()
	pre, err := preprocess.New(preprocess.DefaultMaxEdge, preprocess.DefaultQuality)
	if err != nil {
		t.Fatalf("build preprocessor: %v", err)
	}
	return New(pre, dispatcher, nil)
}

func buildTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestProcessOversizedPhoto(t *testing.T) {
	dispatcher := &captureDispatcher{result: domain.Succeed("https://img.example/styled.png")}
	processor := newTestProcessor(t, dispatcher)

	source := buildTestJPEG(t, 4000, 2000)
	result := processor.Process(context.Background(), source, "image/jpeg")

	if !result.Succeeded() {
		t.Fatalf("expected success, got %+v", result.Failure)
	}
	if result.ImageURL != "https://img.example/styled.png" {
		t.Fatalf("unexpected image URL %q", result.ImageURL)
	}
	if dispatcher.calls != 1 {
		t.Fatalf("dispatcher called %d times", dispatcher.calls)
	}

	data, mediaType, err := payload.Decode(dispatcher.lastReq.Image)
	if err != nil {
		t.Fatalf("dispatched payload is not a data URI: %v", err)
	}
	if mediaType != "image/jpeg" {
		t.Fatalf("dispatched media type %q, want image/jpeg", mediaType)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("dispatched payload is not a decodable JPEG: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() != 1024 || bounds.Dy() != 512 {
		t.Fatalf("dispatched image is %dx%d, want 1024x512", bounds.Dx(), bounds.Dy())
	}
	if len(data) >= len(source) {
		t.Fatalf("preprocessing should shrink the payload: %d -> %d bytes", len(source), len(data))
	}
}

func TestProcessRejectsUnsupportedType(t *testing.T) {
	dispatcher := &captureDispatcher{result: domain.Succeed("unused")}
	processor := newTestProcessor(t, dispatcher)

	result := processor.Process(context.Background(), []byte("BM6fakebitmap"), "image/bmp")
	if result.Succeeded() {
		t.Fatal("expected a failure for an unsupported media type")
	}
	if result.Failure.Category != domain.CategoryUnsupportedType {
		t.Fatalf("category = %s, want %s", result.Failure.Category, domain.CategoryUnsupportedType)
	}
	if !strings.Contains(result.Failure.Message, "image/bmp") {
		t.Fatalf("message %q should name the rejected type", result.Failure.Message)
	}
	if dispatcher.calls != 0 {
		t.Fatal("unsupported input must not reach the dispatcher")
	}
}

func TestProcessRejectsEmptyInput(t *testing.T) {
	dispatcher := &captureDispatcher{}
	processor := newTestProcessor(t, dispatcher)

	result := processor.Process(context.Background(), nil, "image/png")
	if result.Succeeded() || result.Failure.Category != domain.CategoryInvalidImage {
		t.Fatalf("expected invalid_image failure, got %+v", result)
	}
	if dispatcher.calls != 0 {
		t.Fatal("empty input must not reach the dispatcher")
	}
}

func TestProcessRejectsCorruptImage(t *testing.T) {
	dispatcher := &captureDispatcher{}
	processor := newTestProcessor(t, dispatcher)

	corrupt := []byte("\x89PNG\r\n\x1a\nthis is not a real png body")
	result := processor.Process(context.Background(), corrupt, "image/png")
	if result.Succeeded() {
		t.Fatal("expected a failure for a corrupt image")
	}
	if result.Failure.Category != domain.CategoryInvalidImage {
		t.Fatalf("category = %s, want %s", result.Failure.Category, domain.CategoryInvalidImage)
	}
	if dispatcher.calls != 0 {
		t.Fatal("corrupt input must not reach the dispatcher")
	}
}

func TestProcessPropagatesDispatchFailure(t *testing.T) {
	dispatcher := &captureDispatcher{result: domain.Fail(domain.CategoryTimeout, "the transformation took too long")}
	processor := newTestProcessor(t, dispatcher)

	result := processor.Process(context.Background(), buildTestJPEG(t, 64, 64), "image/jpeg")
	if result.Succeeded() {
		t.Fatal("expected the dispatch failure to propagate")
	}
	if result.Failure.Category != domain.CategoryTimeout {
		t.Fatalf("category = %s, want %s", result.Failure.Category, domain.CategoryTimeout)
	}
}

func TestProcessCancelledContext(t *testing.T) {
	dispatcher := &captureDispatcher{}
	processor := newTestProcessor(t, dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := processor.Process(ctx, buildTestJPEG(t, 64, 64), "image/jpeg")
	if result.Succeeded() {
		t.Fatal("expected a failure for a cancelled context")
	}
	if result.Failure.Category != domain.CategoryTimeout {
		t.Fatalf("category = %s, want %s", result.Failure.Category, domain.CategoryTimeout)
	}
	if dispatcher.calls != 0 {
		t.Fatal("cancelled work must not reach the dispatcher")
	}
}

func TestProbe(t *testing.T) {
	dispatcher := &captureDispatcher{result: domain.Succeed("")}
	processor := newTestProcessor(t, dispatcher)

	result := processor.Probe(context.Background())
	if !result.Succeeded() {
		t.Fatalf("probe failed: %+v", result.Failure)
	}
	if !dispatcher.lastReq.Test {
		t.Fatal("probe must set the test flag")
	}
	if dispatcher.lastReq.Image != "" {
		t.Fatal("probe must not carry an image payload")
	}
}
