package domain

// TransformRequest is the JSON body the client pipeline sends to the proxy.
// A probe request carries Test=true and no image; the proxy answers it
// without contacting the upstream service.
type TransformRequest struct {
	Image string `json:"image,omitempty"`
	Test  bool   `json:"test,omitempty"`
}

// TransformResponse is the stable wire shape the proxy answers with,
// regardless of which upstream response shape produced it.
type TransformResponse struct {
	Success  bool   `json:"success"`
	ImageURL string `json:"imageUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}
