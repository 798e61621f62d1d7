// Package engine describes the boundary to a blocking, callback-instrumented
// HTTP engine. A Session performs every operation synchronously and reports
// lifecycle progress by invoking the single Callback supplied in its Config
// before the triggering call returns.
package engine

import (
	"time"
)

// EventID identifies the lifecycle event delivered to a Callback
type EventID int

const (
	EventError EventID = iota
	EventConnected
	EventHeadersSent
	EventHeader
	EventData
	EventFinish
	EventDisconnected
	EventRedirect
)

func (id EventID) String() string {
	switch id {
	case EventError:
		return "ERROR"
	case EventConnected:
		return "ON_CONNECTED"
	case EventHeadersSent:
		return "HEADERS_SENT"
	case EventHeader:
		return "ON_HEADER"
	case EventData:
		return "ON_DATA"
	case EventFinish:
		return "ON_FINISH"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventRedirect:
		return "REDIRECT"
	default:
		return "UNKNOWN"
	}
}

// Event is passed to the session callback. HeaderKey and HeaderValue are set
// for EventHeader, Data for EventData, Err for EventError.
type Event struct {
	ID          EventID
	HeaderKey   string
	HeaderValue string
	Data        []byte
	Err         error
}

// Callback receives engine events. A non-nil return aborts the operation that
// emitted the event.
type Callback func(ev *Event) error

// Method is an HTTP request method as understood by the engine
type Method int

const (
	MethodGet Method = iota
	MethodPost
	MethodPut
	MethodPatch
	MethodDelete
	MethodHead
	MethodOptions
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	case MethodPatch:
		return "PATCH"
	case MethodDelete:
		return "DELETE"
	case MethodHead:
		return "HEAD"
	case MethodOptions:
		return "OPTIONS"
	default:
		return "GET"
	}
}

// ParseMethod maps a method name onto a Method
func ParseMethod(name string) (Method, bool) {
	for m := MethodGet; m <= MethodOptions; m++ {
		if m.String() == name {
			return m, true
		}
	}
	return MethodGet, false
}

// Config holds session initialization parameters. Certificate material is
// passed through untouched.
type Config struct {
	URL              string
	BufferSize       int
	BufferSizeTx     int
	Timeout          time.Duration
	ClientCertPEM    []byte
	ClientKeyPEM     []byte
	UseGlobalCAStore bool
	MaxRedirects     int
	Callback         Callback
}

// Session is one native engine client handle
type Session interface {
	// SetURL starts a new request against uri, discarding the headers of
	// the previous one.
	SetURL(uri string) error
	SetMethod(m Method) error
	SetHeader(name, value string) error

	// Open connects and sends the request head announcing contentLength
	// body bytes. contentLength overrides any Content-Length header. It may
	// invoke the callback before returning.
	Open(contentLength int64) error

	// FetchHeaders reads and parses the response head, invoking the callback
	// once per header. It returns the response content length, or a negative
	// value when unknown.
	FetchHeaders() (int64, error)

	StatusCode() int
	ContentLength() int64

	Read(p []byte) (int, error)
	Write(p []byte) (int, error)

	// FlushResponse discards the remaining response body and returns the
	// number of bytes discarded.
	FlushResponse() (int, error)

	// SetRedirection points the session at the Location of the current
	// redirect response.
	SetRedirection() error

	Cleanup() error
}

// Engine creates sessions
type Engine interface {
	NewSession(cfg *Config) (Session, error)
}
