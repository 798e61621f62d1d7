// Package client exposes a request/response connection over a blocking,
// callback-driven engine session.
//
// A Connection moves through three phases: New, Request and Response.
// InitiateRequest opens the session and waits for the engine to report the
// connection through a Future; Write streams the request body;
// InitiateResponse fetches headers, following redirects as configured; Status,
// Header and Read then expose the response. Calling an operation in the wrong
// phase is a programming error and panics.
//
// A Connection is not safe for concurrent use. Run independent connections on
// independent goroutines instead.
package client

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nczempin/httpc-conn/engine"
	"github.com/nczempin/httpc-conn/errors"
	"github.com/nczempin/httpc-conn/native"
)

// Phase is the position of a connection in its request/response cycle
type Phase int

const (
	PhaseNew Phase = iota
	PhaseRequest
	PhaseResponse
)

func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhaseRequest:
		return "request"
	case PhaseResponse:
		return "response"
	default:
		return "unknown"
	}
}

type cachedHeader struct {
	value string
	ok    bool
}

// Connection is one engine session driven through a request/response cycle
type Connection struct {
	session           engine.Session
	config            Configuration
	events            *eventChannel
	phase             Phase
	requestContentLen int64
	followRedirects   bool
	headers           *headerStore
	contentLenHeader  *cachedHeader
	closed            bool
	log               *logrus.Entry
}

// NewConnection creates an engine session from cfg. A nil eng selects the
// built-in native engine.
func NewConnection(cfg Configuration, eng engine.Engine) (*Connection, error) {
	if eng == nil {
		eng = native.New(native.Options{Transport: cfg.Transport, Logger: cfg.logger()})
	}

	events := &eventChannel{}
	session, err := eng.NewSession(cfg.engineConfig(events.dispatch))
	if err != nil {
		return nil, errors.NewConstructionError("unable to create engine session", err)
	}
	if session == nil {
		return nil, errors.NewConstructionError("engine returned no session", nil)
	}

	return &Connection{
		session: session,
		config:  cfg,
		events:  events,
		phase:   PhaseNew,
		headers: newHeaderStore(),
		log:     connectionLogger(cfg.logger()),
	}, nil
}

// Handle returns the underlying engine session
func (c *Connection) Handle() engine.Session {
	return c.session
}

// Phase reports the current phase
func (c *Connection) Phase() Phase {
	return c.phase
}

func (c *Connection) IsRequestInitiated() bool {
	return c.phase == PhaseRequest
}

func (c *Connection) IsResponseInitiated() bool {
	return c.phase == PhaseResponse
}

// InitiateRequest configures the session for method and uri, sends the
// request head and waits until the engine reports the connection open.
// A Content-Length header sets the declared body length, zero otherwise.
func (c *Connection) InitiateRequest(ctx context.Context, method engine.Method, uri string, headers []Header) error {
	c.assertInitial()
	c.events.assertIdle()
	c.phase = PhaseNew

	if err := c.session.SetURL(uri); err != nil {
		return err
	}
	if err := c.session.SetMethod(method); err != nil {
		return err
	}

	var contentLen int64
	for _, h := range headers {
		if strings.EqualFold(h.Name, "Content-Length") {
			if n, err := strconv.ParseUint(strings.TrimSpace(h.Value), 10, 63); err == nil {
				contentLen = int64(n)
			}
		}
		if err := c.session.SetHeader(h.Name, h.Value); err != nil {
			return err
		}
	}

	c.followRedirects = c.config.FollowRedirectsPolicy.follows(method)
	c.requestContentLen = contentLen

	c.log.WithFields(logrus.Fields{
		"method":         method,
		"uri":            uri,
		"content_length": contentLen,
	}).Debug("initiating request")

	if err := c.open(ctx); err != nil {
		return err
	}

	c.phase = PhaseRequest
	return nil
}

// open runs Session.Open through a Future and waits for it. The handler
// slot is empty again when open returns.
func (c *Connection) open(ctx context.Context) error {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	defer c.events.release()
	return newOpenFuture(c).Await(ctx)
}

// InitiateResponse fetches the response headers and enters the Response
// phase.
func (c *Connection) InitiateResponse(ctx context.Context) error {
	c.assertRequest()
	c.events.assertIdle()

	if err := c.fetchHeaders(ctx); err != nil {
		return err
	}

	c.phase = PhaseResponse
	return nil
}

// Status returns the response status code
func (c *Connection) Status() int {
	c.assertResponse()
	return c.session.StatusCode()
}

// StatusMessage is always empty; the engine does not expose reason phrases.
func (c *Connection) StatusMessage() string {
	c.assertResponse()
	return ""
}

// Header returns the value of the named response header. Content-Length is
// answered by the engine, queried once per response.
func (c *Connection) Header(name string) (string, bool) {
	c.assertResponse()

	if strings.EqualFold(name, "Content-Length") {
		if c.contentLenHeader == nil {
			cached := &cachedHeader{}
			if n := c.session.ContentLength(); n >= 0 {
				cached.value = strconv.FormatInt(n, 10)
				cached.ok = true
			}
			c.contentLenHeader = cached
		}
		return c.contentLenHeader.value, c.contentLenHeader.ok
	}

	return c.headers.get(name)
}

// Headers returns a copy of every header received with the response
func (c *Connection) Headers() map[string]string {
	c.assertResponse()
	return c.headers.snapshot()
}

// Read reads the response body. It returns io.EOF once the body is drained.
func (c *Connection) Read(p []byte) (int, error) {
	c.assertResponse()

	n, err := c.session.Read(p)
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write sends request body bytes
func (c *Connection) Write(p []byte) (int, error) {
	c.assertRequest()
	return c.session.Write(p)
}

// Flush is a no-op; the engine writes through.
func (c *Connection) Flush() error {
	c.assertRequest()
	return nil
}

// Close releases the engine session. A session that cannot be cleaned up
// leaks native resources, so that failure panics.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.events.release()

	if err := c.session.Cleanup(); err != nil {
		c.log.WithError(err).Panic("unable to stop the client cleanly")
	}
	return nil
}

func (c *Connection) assertInitial() {
	if c.closed {
		panic("connection is closed")
	}
	if c.phase != PhaseNew && c.phase != PhaseResponse {
		panic(fmt.Sprintf("connection is not in initial phase (phase %s)", c.phase))
	}
}

func (c *Connection) assertRequest() {
	if c.phase != PhaseRequest {
		panic(fmt.Sprintf("connection is not in request phase (phase %s)", c.phase))
	}
}

func (c *Connection) assertResponse() {
	if c.phase != PhaseResponse {
		panic(fmt.Sprintf("connection is not in response phase (phase %s)", c.phase))
	}
}
