package protocol

import "strings"

// HttpHeader represents an HTTP header key-value pair
type HttpHeader struct {
	Key   string
	Value string
}

// RequestHead is everything written before the request body
type RequestHead struct {
	Method  string
	Target  string
	Host    string
	Headers []HttpHeader
	// ContentLength is announced when positive and no Content-Length header
	// is present.
	ContentLength int64
}

// ResponseHead is a parsed status line and header block
type ResponseHead struct {
	Proto         string
	StatusCode    int
	StatusMessage string
	Headers       []HttpHeader
	// ContentLength is -1 when the body length is not declared
	ContentLength int64
	Chunked       bool
}

// Header returns the first header named key, matched case-insensitively
func (h *ResponseHead) Header(key string) (string, bool) {
	return findHeader(h.Headers, key)
}

func findHeader(headers []HttpHeader, key string) (string, bool) {
	for _, header := range headers {
		if strings.EqualFold(header.Key, key) {
			return header.Value, true
		}
	}
	return "", false
}

// bodyless reports statuses that never carry a body
func bodyless(status int) bool {
	return (status >= 100 && status < 200) || status == 204 || status == 304
}

// isFramingHeader reports request headers that WriteRequestHead derives itself
func isFramingHeader(name string) bool {
	return strings.EqualFold(name, "Content-Length") || strings.EqualFold(name, "Transfer-Encoding")
}
