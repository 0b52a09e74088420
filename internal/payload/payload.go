// Package payload converts image bytes to and from the textual transport
// form used in request bodies: a data URI carrying the media type and the
// base64-encoded bytes. The two directions are exact inverses.
package payload

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"restyle/internal/domain"
)

const scheme = "data:"

var ErrNotDataURI = errors.New("payload is not a data URI")

// Encode serializes image bytes into a data URI. When mediaType is empty it
// is inferred from the leading bytes.
func Encode(data []byte, mediaType string) string {
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		mediaType = domain.SniffMediaType(data)
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return scheme + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Decode recovers the original bytes and media type tag from an encoded
// payload.
func Decode(encoded string) ([]byte, string, error) {
	if !strings.HasPrefix(encoded, scheme) {
		return nil, "", ErrNotDataURI
	}

	rest := encoded[len(scheme):]
	meta, b64, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing data separator", ErrNotDataURI)
	}

	mediaType := strings.TrimSuffix(meta, ";base64")
	if mediaType == meta {
		return nil, "", fmt.Errorf("%w: only base64 payloads are supported", ErrNotDataURI)
	}

	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64 payload: %w", err)
	}
	return data, mediaType, nil
}
