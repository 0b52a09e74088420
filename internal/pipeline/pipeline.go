// Package pipeline is the client-side half of the system. It walks a source
// photo through validation, preprocessing, transport encoding, and dispatch,
// and always resolves to a domain.Result rather than surfacing transport
// details to the caller.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"restyle/internal/domain"
	"restyle/internal/payload"
	"restyle/internal/preprocess"
)

type Preprocessor interface {
	Process(ctx context.Context, input []byte) (data []byte, width, height int, err error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req domain.TransformRequest) domain.Result
}

type Processor struct {
	preprocessor Preprocessor
	dispatcher   Dispatcher
	logger       *log.Logger
}

func New(preprocessor Preprocessor, dispatcher Dispatcher, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Processor{
		preprocessor: preprocessor,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

// Process takes raw image bytes with their declared media type and resolves
// to exactly one outcome: a URL for the stylized image, or a categorized
// failure. It never returns a transport error directly.
func (p *Processor) Process(ctx context.Context, data []byte, mediaType string) domain.Result {
	source := domain.SourceImage{Data: data, MediaType: mediaType}
	if failure := source.Validate(); failure != nil {
		return domain.FailFrom(*failure)
	}

	started := time.Now()
	processed, width, height, err := p.preprocessor.Process(ctx, source.Data)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.Fail(domain.CategoryTimeout, "the transformation was cancelled before it could finish")
		}
		if errors.Is(err, preprocess.ErrDecode) {
			return domain.Fail(domain.CategoryInvalidImage, "the image could not be decoded; it may be corrupt or truncated")
		}
		return domain.Fail(domain.CategoryInvalidImage, "the image could not be prepared for transformation")
	}
	p.logger.Printf("preprocessed %dx%d bytes=%d elapsed=%s", width, height, len(processed), time.Since(started).Round(time.Millisecond))

	encoded := payload.Encode(processed, preprocess.OutputMediaType)
	return p.dispatcher.Dispatch(ctx, domain.TransformRequest{Image: encoded})
}

// Probe sends a connectivity check through the dispatcher without an image.
// A success result means the proxy is reachable and answering.
func (p *Processor) Probe(ctx context.Context) domain.Result {
	return p.dispatcher.Dispatch(ctx, domain.TransformRequest{Test: true})
}
