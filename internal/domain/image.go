package domain

import (
	"bytes"
	"fmt"
	"strings"
)

// SupportedMediaTypes is the allow-list applied before any decode or network
// activity. Everything else is rejected up front.
var SupportedMediaTypes = []string{
	"image/png",
	"image/jpeg",
	"image/gif",
}

// SourceImage is a user submission as it enters the pipeline: raw bytes plus
// the media type the caller declared for them. Immutable once validated.
type SourceImage struct {
	Data      []byte
	MediaType string
}

// Validate checks the declared media type against the allow-list. It is a
// pure check: no decode, no network. A nil return means the image may enter
// the pipeline.
func (s SourceImage) Validate() *Failure {
	if len(s.Data) == 0 {
		return &Failure{
			Category: CategoryInvalidImage,
			Message:  "the submitted image is empty",
		}
	}

	mediaType := strings.ToLower(strings.TrimSpace(s.MediaType))
	if mediaType == "" {
		mediaType = SniffMediaType(s.Data)
	}
	for _, allowed := range SupportedMediaTypes {
		if mediaType == allowed {
			return nil
		}
	}
	return &Failure{
		Category: CategoryUnsupportedType,
		Message:  fmt.Sprintf("unsupported image type %q, expected one of %s", s.MediaType, strings.Join(SupportedMediaTypes, ", ")),
	}
}

var imageSignatures = map[string][]byte{
	"image/jpeg": {0xFF, 0xD8},
	"image/png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"image/gif":  {0x47, 0x49, 0x46, 0x38},
}

// SniffMediaType inspects the leading magic bytes when no media type was
// declared. Unknown content comes back as an empty string and fails the
// allow-list check.
func SniffMediaType(data []byte) string {
	for mediaType, signature := range imageSignatures {
		if bytes.HasPrefix(data, signature) {
			return mediaType
		}
	}
	return ""
}
