package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoImage marks an upstream answer that parsed but contained no usable
// generated image in any known shape.
var ErrNoImage = errors.New("upstream response contained no image")

// outputItemImage is the only output-item subtype that carries generated
// image data in the richer interaction mode.
const outputItemImage = "image_generation_call"

type apiResponse struct {
	Data   []datum      `json:"data"`
	Output []outputItem `json:"output"`
}

type datum struct {
	URL     string `json:"url"`
	B64JSON string `json:"b64_json"`
}

type outputItem struct {
	Type   string `json:"type"`
	Result string `json:"result"`
}

// Normalize extracts the generated image reference from whichever known
// upstream shape is present, in fixed priority order: remote URL, inline
// base64 blob, then the image subtype of an output-item list. When nothing
// matches it reports ErrNoImage together with the shape tags it did observe,
// so callers downstream never need to know which shape was attempted.
func Normalize(body []byte) (string, []string, error) {
	var decoded apiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", nil, fmt.Errorf("parse upstream response: %w", err)
	}

	var observed []string

	for _, d := range decoded.Data {
		if d.URL != "" {
			return d.URL, nil, nil
		}
		observed = append(observed, "data")
	}
	for _, d := range decoded.Data {
		if d.B64JSON != "" {
			return "data:image/png;base64," + d.B64JSON, nil, nil
		}
	}
	for _, item := range decoded.Output {
		if item.Type == outputItemImage && item.Result != "" {
			return "data:image/png;base64," + item.Result, nil, nil
		}
		observed = append(observed, "output:"+item.Type)
	}

	if len(observed) == 0 {
		observed = append(observed, "none")
	}
	return "", observed, ErrNoImage
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// parseErrorMessage pulls the human-readable message out of an upstream
// error body when one is present.
func parseErrorMessage(body []byte) string {
	var decoded apiError
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ""
	}
	return decoded.Error.Message
}
