// Package enginetest provides a scripted engine.Session for exercising code
// that sits on top of the engine boundary without any network.
package enginetest

import (
	"bytes"
	"strings"
	"sync"

	"github.com/nczempin/httpc-conn/engine"
	"github.com/nczempin/httpc-conn/errors"
)

// Header is one scripted response header
type Header struct {
	Name  string
	Value string
}

// Response is one scripted response head and body. ContentLength < 0 means
// unknown.
type Response struct {
	Status        int
	Headers       []Header
	ContentLength int64
	Body          []byte
}

// Session replays Responses in order, one per FetchHeaders call, and records
// every primitive invoked on it. Fields configuring behavior must be set
// before the session is handed to the code under test.
type Session struct {
	Responses []Response

	// OpenErr is returned by Open and delivered through an EventError
	// callback in place of EventConnected.
	OpenErr error
	// SilentOpen suppresses the Open event entirely.
	SilentOpen bool
	// AsyncOpen delivers the Open event from another goroutine once
	// ReleaseOpen is called, after Open itself has returned.
	AsyncOpen bool
	FetchErr  error
	ReadErr   error
	WriteErr  error

	CleanupErr error

	mu       sync.Mutex
	cfg      *engine.Config
	release  chan struct{}
	current  int
	bodyOff  int
	received bytes.Buffer

	URL                string
	Method             engine.Method
	RequestHeaders     []Header
	Methods            []engine.Method
	OpenLengths        []int64
	FetchCalls         int
	ContentLengthCalls int
	FlushCalls         int
	RedirectCalls      int
	CleanupCalls       int
}

// Engine hands out a single pre-built Session
type Engine struct {
	Session  *Session
	Err      error
	Sessions int
}

// NewSession implements engine.Engine
func (e *Engine) NewSession(cfg *engine.Config) (engine.Session, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	e.Sessions++
	e.Session.attach(cfg)
	return e.Session, nil
}

// NewEngine returns an Engine serving s
func NewEngine(s *Session) *Engine {
	return &Engine{Session: s}
}

func (s *Session) attach(cfg *engine.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.URL = cfg.URL
	s.release = make(chan struct{})
}

// Config returns the configuration the session was created with
func (s *Session) Config() *engine.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Fire delivers ev to the registered callback as the engine would
func (s *Session) Fire(ev *engine.Event) error {
	cfg := s.Config()
	if cfg == nil || cfg.Callback == nil {
		return nil
	}
	return cfg.Callback(ev)
}

// ReleaseOpen lets a pending AsyncOpen event fire
func (s *Session) ReleaseOpen() {
	close(s.release)
}

// Body returns everything written to the request body
func (s *Session) Body() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.received.Bytes()...)
}

func (s *Session) SetURL(uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.URL = uri
	s.RequestHeaders = nil
	return nil
}

func (s *Session) SetMethod(m engine.Method) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Method = m
	s.Methods = append(s.Methods, m)
	return nil
}

func (s *Session) SetHeader(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RequestHeaders = append(s.RequestHeaders, Header{Name: name, Value: value})
	return nil
}

func (s *Session) Open(contentLength int64) error {
	s.mu.Lock()
	s.OpenLengths = append(s.OpenLengths, contentLength)
	release := s.release
	s.mu.Unlock()

	if s.SilentOpen {
		return s.OpenErr
	}

	ev := &engine.Event{ID: engine.EventConnected}
	if s.OpenErr != nil {
		ev = &engine.Event{ID: engine.EventError, Err: s.OpenErr}
	}

	if s.AsyncOpen {
		go func() {
			<-release
			s.Fire(ev)
		}()
		return s.OpenErr
	}

	if err := s.Fire(ev); err != nil && s.OpenErr == nil {
		return err
	}
	return s.OpenErr
}

func (s *Session) response() *Response {
	if len(s.Responses) == 0 {
		return &Response{Status: 200, ContentLength: -1}
	}
	idx := s.current
	if idx >= len(s.Responses) {
		idx = len(s.Responses) - 1
	}
	return &s.Responses[idx]
}

func (s *Session) FetchHeaders() (int64, error) {
	s.mu.Lock()
	s.FetchCalls++
	if s.FetchCalls > 1 {
		s.current++
	}
	s.bodyOff = 0
	resp := s.response()
	s.mu.Unlock()

	if s.FetchErr != nil {
		return 0, s.FetchErr
	}

	for _, h := range resp.Headers {
		if err := s.Fire(&engine.Event{ID: engine.EventHeader, HeaderKey: h.Name, HeaderValue: h.Value}); err != nil {
			return 0, err
		}
	}
	return resp.ContentLength, nil
}

func (s *Session) StatusCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.response().Status
}

func (s *Session) ContentLength() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ContentLengthCalls++
	return s.response().ContentLength
}

func (s *Session) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadErr != nil {
		return 0, s.ReadErr
	}
	body := s.response().Body
	n := copy(p, body[s.bodyOff:])
	s.bodyOff += n
	return n, nil
}

func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return 0, s.WriteErr
	}
	return s.received.Write(p)
}

func (s *Session) FlushResponse() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FlushCalls++
	body := s.response().Body
	n := len(body) - s.bodyOff
	s.bodyOff = len(body)
	return n, nil
}

func (s *Session) SetRedirection() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RedirectCalls++
	for _, h := range s.response().Headers {
		if strings.EqualFold(h.Name, "Location") {
			s.URL = h.Value
			return nil
		}
	}
	return errors.NewEngineError(errors.EngineInvalidArg, "redirect without Location", nil)
}

func (s *Session) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CleanupCalls++
	return s.CleanupErr
}
