package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType int

const (
	ErrorNone ErrorType = iota
	ErrorTransport
	ErrorProtocol
	ErrorInvalidArgument
	ErrorEngine
	ErrorConstruction
	ErrorRedirect
)

// TransportError represents transport-layer specific errors
type TransportError int

const (
	TransportErrorNone TransportError = iota
	TransportErrorSocketCreateFailure
	TransportErrorSocketConnectFailure
	TransportErrorSocketReadFailure
	TransportErrorSocketWriteFailure
	TransportErrorConnectionClosed
	TransportErrorDnsFailure
	TransportErrorTimeout
	TransportErrorIoUringInit
	TransportErrorIoUringSubmit
	TransportErrorTLSHandshake
)

// ProtocolError represents protocol-layer specific errors
type ProtocolError int

const (
	ProtocolErrorNone ProtocolError = iota
	ProtocolErrorInvalidStatusLine
	ProtocolErrorInvalidHeader
	ProtocolErrorInvalidChunkedEncoding
	ProtocolErrorMessageTooLarge
	ProtocolErrorIncompleteResponse
	ProtocolErrorInvalidURL
)

// EngineCode is a native engine result code. Negative values are failures.
type EngineCode int

const (
	EngineOK           EngineCode = 0
	EngineFail         EngineCode = -1
	EngineInvalidArg   EngineCode = -2
	EngineInvalidState EngineCode = -3
	EngineNoMemory     EngineCode = -4
	EngineTimeout      EngineCode = -5
	EngineIO           EngineCode = -6
)

func (c EngineCode) String() string {
	switch c {
	case EngineOK:
		return "OK"
	case EngineFail:
		return "FAIL"
	case EngineInvalidArg:
		return "INVALID_ARG"
	case EngineInvalidState:
		return "INVALID_STATE"
	case EngineNoMemory:
		return "NO_MEM"
	case EngineTimeout:
		return "TIMEOUT"
	case EngineIO:
		return "IO"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// HttpError is the main error type for the HTTP client
type HttpError struct {
	Type          ErrorType
	TransportErr  TransportError
	ProtocolErr   ProtocolError
	Code          EngineCode
	Message       string
	UnderlyingErr error
}

// Error implements the error interface
func (e *HttpError) Error() string {
	if e == nil {
		return "no error"
	}

	var typeStr string
	switch e.Type {
	case ErrorTransport:
		typeStr = fmt.Sprintf("Transport error (%d)", e.TransportErr)
	case ErrorProtocol:
		typeStr = fmt.Sprintf("Protocol error (%d)", e.ProtocolErr)
	case ErrorInvalidArgument:
		typeStr = "Invalid argument"
	case ErrorEngine:
		typeStr = fmt.Sprintf("Engine error (%s)", e.Code)
	case ErrorConstruction:
		typeStr = "Construction error"
	case ErrorRedirect:
		typeStr = "Redirect error"
	default:
		typeStr = "Unknown error"
	}

	if e.Message != "" {
		typeStr = fmt.Sprintf("%s: %s", typeStr, e.Message)
	}

	if e.UnderlyingErr != nil {
		return fmt.Sprintf("%s (caused by: %v)", typeStr, e.UnderlyingErr)
	}

	return typeStr
}

// Unwrap returns the underlying error for error chain support
func (e *HttpError) Unwrap() error {
	return e.UnderlyingErr
}

// NewTransportError creates a new transport error
func NewTransportError(err TransportError, message string, underlying error) *HttpError {
	return &HttpError{
		Type:          ErrorTransport,
		TransportErr:  err,
		Code:          EngineIO,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewProtocolError creates a new protocol error
func NewProtocolError(err ProtocolError, message string) *HttpError {
	return &HttpError{
		Type:        ErrorProtocol,
		ProtocolErr: err,
		Code:        EngineFail,
		Message:     message,
	}
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string) *HttpError {
	return &HttpError{
		Type:    ErrorInvalidArgument,
		Code:    EngineInvalidArg,
		Message: message,
	}
}

// NewEngineError wraps a failing native result code
func NewEngineError(code EngineCode, message string, underlying error) *HttpError {
	return &HttpError{
		Type:          ErrorEngine,
		Code:          code,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewConstructionError reports a session that could not be created
func NewConstructionError(message string, underlying error) *HttpError {
	return &HttpError{
		Type:          ErrorConstruction,
		Code:          EngineFail,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewRedirectError reports a redirect chain that exceeded its bound
func NewRedirectError(message string) *HttpError {
	return &HttpError{
		Type:    ErrorRedirect,
		Code:    EngineFail,
		Message: message,
	}
}

// CodeOf extracts the engine code carried by err. Errors that are not
// *HttpError map to EngineFail, nil maps to EngineOK.
func CodeOf(err error) EngineCode {
	if err == nil {
		return EngineOK
	}
	var httpErr *HttpError
	if stderrors.As(err, &httpErr) {
		if httpErr.Code == EngineOK {
			return EngineFail
		}
		return httpErr.Code
	}
	return EngineFail
}

// IsType reports whether err is an *HttpError of the given category
func IsType(err error, t ErrorType) bool {
	var httpErr *HttpError
	return stderrors.As(err, &httpErr) && httpErr.Type == t
}
