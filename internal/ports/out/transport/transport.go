package transport

import (
	"context"
	"net/http"
)

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Getter issues GET requests. A non-nil error means no response was received.
type Getter interface {
	Get(ctx context.Context, url string, header http.Header) (Response, error)
}
