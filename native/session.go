// Package native implements engine.Engine as a blocking HTTP/1.1 client.
// Every primitive runs to completion on the calling goroutine and reports
// progress through the session callback before it returns.
package native

import (
	"crypto/tls"
	"crypto/x509"
	stderrors "errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/http/httpguts"

	"github.com/nczempin/httpc-conn/engine"
	"github.com/nczempin/httpc-conn/errors"
	"github.com/nczempin/httpc-conn/protocol"
	"github.com/nczempin/httpc-conn/transport"
)

// Options configures the engine independently of individual sessions
type Options struct {
	// Transport is the transport kind for plain http URLs. https always
	// uses the net transport.
	Transport string
	// SocketPath is dialed instead of the URL host by the unix transport.
	SocketPath string
	// RootCAs verifies servers unless a session asks for the global store.
	RootCAs *x509.CertPool
	// InsecureSkipVerify disables server certificate checks.
	InsecureSkipVerify bool
	Logger             *logrus.Logger
}

// Engine creates native sessions
type Engine struct {
	opts Options
}

// New creates an Engine
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Engine{opts: opts}
}

// NewSession implements engine.Engine
func (e *Engine) NewSession(cfg *engine.Config) (engine.Session, error) {
	if cfg == nil || cfg.Callback == nil {
		return nil, errors.NewInvalidArgumentError("session requires a callback")
	}

	u, err := parseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	tlsConfig, err := e.tlsConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:       *cfg,
		opts:      e.opts,
		tlsConfig: tlsConfig,
		url:       u,
		method:    engine.MethodGet,
		log:       e.opts.Logger.WithField("component", "native"),
	}, nil
}

func (e *Engine) tlsConfig(cfg *engine.Config) (*tls.Config, error) {
	tc := &tls.Config{
		InsecureSkipVerify: e.opts.InsecureSkipVerify,
	}
	if !cfg.UseGlobalCAStore {
		tc.RootCAs = e.opts.RootCAs
	}
	if len(cfg.ClientCertPEM) > 0 && len(cfg.ClientKeyPEM) > 0 {
		cert, err := tls.X509KeyPair(cfg.ClientCertPEM, cfg.ClientKeyPEM)
		if err != nil {
			return nil, errors.NewEngineError(errors.EngineInvalidArg, "invalid client certificate", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	return tc, nil
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &errors.HttpError{
			Type:          errors.ErrorProtocol,
			ProtocolErr:   errors.ProtocolErrorInvalidURL,
			Code:          errors.EngineInvalidArg,
			Message:       fmt.Sprintf("invalid URL %q", raw),
			UnderlyingErr: err,
		}
	}
	return u, nil
}

// Session is one native client handle. It reconnects on every Open.
type Session struct {
	cfg       engine.Config
	opts      Options
	tlsConfig *tls.Config
	log       *logrus.Entry

	url       *url.URL
	method    engine.Method
	headers   []protocol.HttpHeader
	redirects int
	bodyless  bool

	trans    transport.Transport
	proto    *protocol.Http1Protocol
	head     *protocol.ResponseHead
	finished bool
}

func (s *Session) fire(ev *engine.Event) error {
	return s.cfg.Callback(ev)
}

// fail reports err through an EventError callback and returns it
func (s *Session) fail(err error) error {
	s.fire(&engine.Event{ID: engine.EventError, Err: err})
	return err
}

// SetURL starts a new request: headers set for the previous one are
// forgotten.
func (s *Session) SetURL(uri string) error {
	u, err := parseURL(uri)
	if err != nil {
		return err
	}
	s.url = u
	s.headers = s.headers[:0]
	s.redirects = 0
	s.bodyless = false
	return nil
}

func (s *Session) SetMethod(m engine.Method) error {
	s.method = m
	return nil
}

// SetHeader sets or replaces a request header
func (s *Session) SetHeader(name, value string) error {
	if !httpguts.ValidHeaderFieldName(name) {
		return errors.NewEngineError(errors.EngineInvalidArg, fmt.Sprintf("invalid header name %q", name), nil)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return errors.NewEngineError(errors.EngineInvalidArg, fmt.Sprintf("invalid value for header %q", name), nil)
	}

	for i := range s.headers {
		if strings.EqualFold(s.headers[i].Key, name) {
			s.headers[i].Value = value
			return nil
		}
	}
	s.headers = append(s.headers, protocol.HttpHeader{Key: name, Value: value})
	return nil
}

func (s *Session) dial() (transport.Transport, error) {
	topts := transport.Options{Timeout: s.cfg.Timeout}
	kind := transport.Kind(s.opts.Transport)
	if s.url.Scheme == "https" {
		topts.TLS = s.tlsConfig
		kind = transport.KindNet
	}

	trans, err := transport.New(kind, topts)
	if err != nil {
		return nil, err
	}

	host := s.url.Hostname()
	if kind == transport.KindUnix {
		host = s.opts.SocketPath
	}
	if err := trans.Connect(host, s.port()); err != nil {
		trans.Destroy()
		return nil, err
	}
	return trans, nil
}

func (s *Session) port() int {
	if p := s.url.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	if s.url.Scheme == "https" {
		return 443
	}
	return 80
}

func (s *Session) disconnect() {
	if s.trans == nil {
		return
	}
	s.trans.Destroy()
	s.trans = nil
	s.proto = nil
	s.fire(&engine.Event{ID: engine.EventDisconnected})
}

// Open connects to the current URL and sends the request head framed for
// contentLength body bytes. EventConnected fires once the head is on the wire.
func (s *Session) Open(contentLength int64) error {
	s.disconnect()
	s.head = nil
	s.finished = false

	trans, err := s.dial()
	if err != nil {
		return s.fail(err)
	}
	s.trans = trans
	s.proto = protocol.NewHttp1Protocol(trans, s.cfg.BufferSize)

	if s.bodyless {
		contentLength = 0
	}
	err = s.proto.WriteRequestHead(&protocol.RequestHead{
		Method:        s.method.String(),
		Target:        s.url.RequestURI(),
		Host:          s.url.Host,
		Headers:       s.headers,
		ContentLength: contentLength,
	})
	if err != nil {
		return s.fail(err)
	}

	s.log.WithFields(logrus.Fields{
		"method": s.method,
		"url":    s.url.String(),
	}).Debug("request head sent")

	if err := s.fire(&engine.Event{ID: engine.EventConnected}); err != nil {
		return err
	}
	return s.fire(&engine.Event{ID: engine.EventHeadersSent})
}

// FetchHeaders reads the response head and fires EventHeader per header
func (s *Session) FetchHeaders() (int64, error) {
	if s.proto == nil {
		return 0, errors.NewEngineError(errors.EngineInvalidState, "session not open", nil)
	}

	head, err := s.proto.ReadResponseHead(s.method.String())
	if err != nil {
		return 0, s.fail(err)
	}
	s.head = head

	for _, h := range head.Headers {
		if err := s.fire(&engine.Event{ID: engine.EventHeader, HeaderKey: h.Key, HeaderValue: h.Value}); err != nil {
			return 0, err
		}
	}
	return head.ContentLength, nil
}

func (s *Session) StatusCode() int {
	if s.head == nil {
		return 0
	}
	return s.head.StatusCode
}

func (s *Session) ContentLength() int64 {
	if s.head == nil {
		return -1
	}
	return s.head.ContentLength
}

// Read returns response body bytes, 0 once the body is exhausted
func (s *Session) Read(p []byte) (int, error) {
	if s.proto == nil || s.head == nil {
		return 0, errors.NewEngineError(errors.EngineInvalidState, "no response to read", nil)
	}

	n, err := s.proto.ReadBody(p)
	if n > 0 {
		if cbErr := s.fire(&engine.Event{ID: engine.EventData, Data: p[:n]}); cbErr != nil {
			return n, cbErr
		}
	}
	if stderrors.Is(err, io.EOF) {
		if !s.finished {
			s.finished = true
			s.fire(&engine.Event{ID: engine.EventFinish})
		}
		return n, nil
	}
	if err != nil {
		return n, s.fail(err)
	}
	return n, nil
}

func (s *Session) Write(p []byte) (int, error) {
	if s.proto == nil {
		return 0, errors.NewEngineError(errors.EngineInvalidState, "session not open", nil)
	}
	n, err := s.proto.WriteBody(p)
	if err != nil {
		return n, s.fail(err)
	}
	return n, nil
}

// FlushResponse discards the rest of the current response body
func (s *Session) FlushResponse() (int, error) {
	if s.proto == nil || s.head == nil {
		return 0, nil
	}
	return s.proto.DiscardBody()
}

// SetRedirection moves the session to the Location of the current response.
// The redirected request carries no body.
func (s *Session) SetRedirection() error {
	if s.head == nil {
		return errors.NewEngineError(errors.EngineInvalidState, "no response to redirect from", nil)
	}
	location, ok := s.head.Header("Location")
	if !ok || location == "" {
		return errors.NewEngineError(errors.EngineInvalidArg, "redirect without Location", nil)
	}
	if s.cfg.MaxRedirects > 0 && s.redirects >= s.cfg.MaxRedirects {
		return errors.NewRedirectError(fmt.Sprintf("engine limit of %d redirects reached", s.cfg.MaxRedirects))
	}

	next, err := s.url.Parse(location)
	if err != nil {
		return errors.NewEngineError(errors.EngineInvalidArg, fmt.Sprintf("invalid Location %q", location), err)
	}
	if _, err := parseURL(next.String()); err != nil {
		return err
	}

	s.redirects++
	s.url = next
	s.bodyless = true

	return s.fire(&engine.Event{ID: engine.EventRedirect})
}

// Cleanup closes the connection and releases the transport
func (s *Session) Cleanup() error {
	s.disconnect()
	s.head = nil
	return nil
}
