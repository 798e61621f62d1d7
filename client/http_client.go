package client

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/nczempin/httpc-conn/engine"
	"github.com/nczempin/httpc-conn/errors"
)

// HttpRequest is a complete request for HttpClient
type HttpRequest struct {
	Method  engine.Method
	URL     string
	Headers []Header
	Body    []byte
}

// HttpResponse is a fully buffered response
type HttpResponse struct {
	StatusCode    int
	Headers       map[string]string
	Body          []byte
	ContentLength int64
}

// Header returns the named response header, matched case-insensitively
func (r *HttpResponse) Header(name string) (string, bool) {
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// HttpClient runs whole request/response cycles, one Connection each
type HttpClient struct {
	config Configuration
	engine engine.Engine
}

// NewHttpClient creates a client. A nil eng selects the built-in engine.
func NewHttpClient(cfg Configuration, eng engine.Engine) *HttpClient {
	return &HttpClient{
		config: cfg,
		engine: eng,
	}
}

// Get performs a GET request
func (c *HttpClient) Get(ctx context.Context, url string, headers ...Header) (*HttpResponse, error) {
	return c.Do(ctx, &HttpRequest{Method: engine.MethodGet, URL: url, Headers: headers})
}

// Post performs a POST request with body
func (c *HttpClient) Post(ctx context.Context, url string, body []byte, headers ...Header) (*HttpResponse, error) {
	return c.Do(ctx, &HttpRequest{Method: engine.MethodPost, URL: url, Headers: headers, Body: body})
}

// Do sends req on a fresh connection and buffers the whole response
func (c *HttpClient) Do(ctx context.Context, req *HttpRequest) (*HttpResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	conn, err := NewConnection(c.config, c.engine)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.InitiateRequest(ctx, req.Method, req.URL, requestHeaders(req)); err != nil {
		return nil, err
	}

	for written := 0; written < len(req.Body); {
		n, err := conn.Write(req.Body[written:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "engine accepted no body bytes", nil)
		}
		written += n
	}
	if err := conn.Flush(); err != nil {
		return nil, err
	}

	if err := conn.InitiateResponse(ctx); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(conn)
	if err != nil {
		return nil, err
	}

	resp := &HttpResponse{
		StatusCode:    conn.Status(),
		Headers:       conn.Headers(),
		Body:          body,
		ContentLength: -1,
	}
	if v, ok := conn.Header("Content-Length"); ok {
		resp.ContentLength, _ = strconv.ParseInt(v, 10, 64)
	}
	return resp, nil
}

// validateRequest rejects bodies on methods that cannot carry one and
// bodiless POSTs
func validateRequest(req *HttpRequest) error {
	if req == nil || req.URL == "" {
		return errors.NewInvalidArgumentError("request URL is required")
	}

	switch req.Method {
	case engine.MethodGet, engine.MethodHead:
		if len(req.Body) > 0 {
			return errors.NewInvalidArgumentError(req.Method.String() + " request cannot have a body")
		}
	case engine.MethodPost:
		if len(req.Body) == 0 {
			return errors.NewInvalidArgumentError("POST request must have a body")
		}
	}

	if v, ok := findHeader(req.Headers, "Content-Length"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n != len(req.Body) {
			return errors.NewInvalidArgumentError("Content-Length does not match body")
		}
	}

	return nil
}

// requestHeaders adds Content-Length for non-empty bodies when missing
func requestHeaders(req *HttpRequest) []Header {
	headers := append([]Header(nil), req.Headers...)
	if len(req.Body) > 0 {
		if _, ok := findHeader(headers, "Content-Length"); !ok {
			headers = append(headers, Header{Name: "Content-Length", Value: strconv.Itoa(len(req.Body))})
		}
	}
	return headers
}

func findHeader(headers []Header, name string) (string, bool) {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}
