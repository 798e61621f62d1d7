package protocol

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"net/http/httputil"
	"strconv"
	"strings"

	"github.com/valyala/bytebufferpool"

	"github.com/nczempin/httpc-conn/errors"
	"github.com/nczempin/httpc-conn/transport"
)

const (
	// DefaultBufferSize is the read buffer size when none is configured
	DefaultBufferSize = 4096
	// MaxHeaderBytes bounds a response head
	MaxHeaderBytes = 64 << 10
)

// Http1Protocol implements HTTP/1.1 message framing over a transport. One
// request head, optional body, then one response head and body.
type Http1Protocol struct {
	transport transport.Transport
	reader    *bufio.Reader
	body      io.Reader
}

// NewHttp1Protocol creates a new HTTP/1.1 protocol handler
func NewHttp1Protocol(t transport.Transport, bufferSize int) *Http1Protocol {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Http1Protocol{
		transport: t,
		reader:    bufio.NewReaderSize(transportReader{t}, bufferSize),
	}
}

// transportReader maps a peer close onto io.EOF
type transportReader struct {
	t transport.Transport
}

func (r transportReader) Read(p []byte) (int, error) {
	n, err := r.t.Read(p)
	if err != nil {
		var httpErr *errors.HttpError
		if stderrors.As(err, &httpErr) && httpErr.Type == errors.ErrorTransport &&
			httpErr.TransportErr == errors.TransportErrorConnectionClosed {
			return n, io.EOF
		}
	}
	return n, err
}

// WriteRequestHead formats and sends the request line and headers. Body
// framing comes from req.ContentLength alone; Content-Length and
// Transfer-Encoding among req.Headers are dropped.
func (p *Http1Protocol) WriteRequestHead(req *RequestHead) error {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	bb.WriteString(req.Method)
	bb.WriteString(" ")
	bb.WriteString(req.Target)
	bb.WriteString(" HTTP/1.1\r\n")

	if _, ok := findHeader(req.Headers, "Host"); !ok {
		bb.WriteString("Host: ")
		bb.WriteString(req.Host)
		bb.WriteString("\r\n")
	}

	for _, header := range req.Headers {
		if isFramingHeader(header.Key) {
			continue
		}
		bb.WriteString(header.Key)
		bb.WriteString(": ")
		bb.WriteString(header.Value)
		bb.WriteString("\r\n")
	}

	if req.ContentLength > 0 {
		bb.WriteString("Content-Length: ")
		bb.WriteString(strconv.FormatInt(req.ContentLength, 10))
		bb.WriteString("\r\n")
	}

	// Blank line
	bb.WriteString("\r\n")

	_, err := p.transport.Write(bb.B)
	return err
}

// WriteBody sends request body bytes unframed
func (p *Http1Protocol) WriteBody(buf []byte) (int, error) {
	return p.transport.Write(buf)
}

// ReadResponseHead reads the next final response head, skipping interim 1xx
// responses. method decides whether a body follows.
func (p *Http1Protocol) ReadResponseHead(method string) (*ResponseHead, error) {
	for {
		head, err := p.readHead()
		if err != nil {
			return nil, err
		}
		if head.StatusCode >= 100 && head.StatusCode < 200 && head.StatusCode != 101 {
			continue
		}

		p.body = p.bodyReader(head, method)
		return head, nil
	}
}

func (p *Http1Protocol) readHead() (*ResponseHead, error) {
	size := 0
	readLine := func() ([]byte, error) {
		line, err := p.reader.ReadSlice('\n')
		size += len(line)
		if size > MaxHeaderBytes || err == bufio.ErrBufferFull {
			return nil, errors.NewProtocolError(
				errors.ProtocolErrorMessageTooLarge,
				"response head too large",
			)
		}
		if err != nil {
			if err == io.EOF {
				return nil, errors.NewProtocolError(
					errors.ProtocolErrorIncompleteResponse,
					"connection closed before response head was complete",
				)
			}
			return nil, err
		}
		return bytes.TrimRight(line, "\r\n"), nil
	}

	statusLine, err := readLine()
	if err != nil {
		return nil, err
	}
	head, err := parseStatusLine(statusLine)
	if err != nil {
		return nil, err
	}

	for {
		line, err := readLine()
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			break
		}

		headerParts := bytes.SplitN(line, []byte(":"), 2)
		if len(headerParts) != 2 || len(bytes.TrimSpace(headerParts[0])) == 0 {
			return nil, errors.NewProtocolError(
				errors.ProtocolErrorInvalidHeader,
				fmt.Sprintf("malformed header line %q", line),
			)
		}
		head.Headers = append(head.Headers, HttpHeader{
			Key:   string(bytes.TrimSpace(headerParts[0])),
			Value: strings.TrimSpace(string(headerParts[1])),
		})
	}

	head.ContentLength = -1
	if te, ok := head.Header("Transfer-Encoding"); ok && strings.Contains(strings.ToLower(te), "chunked") {
		head.Chunked = true
	} else if cl, ok := head.Header("Content-Length"); ok {
		length, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || length < 0 {
			return nil, errors.NewProtocolError(
				errors.ProtocolErrorInvalidHeader,
				fmt.Sprintf("invalid Content-Length %q", cl),
			)
		}
		head.ContentLength = length
	}

	return head, nil
}

// parseStatusLine parses "HTTP/1.1 200 OK"
func parseStatusLine(statusLine []byte) (*ResponseHead, error) {
	statusParts := bytes.SplitN(statusLine, []byte(" "), 3)
	if len(statusParts) < 2 || !bytes.HasPrefix(statusParts[0], []byte("HTTP/")) {
		return nil, errors.NewProtocolError(
			errors.ProtocolErrorInvalidStatusLine,
			fmt.Sprintf("invalid status line %q", statusLine),
		)
	}

	statusCode, err := strconv.Atoi(string(statusParts[1]))
	if err != nil || statusCode < 100 || statusCode > 999 {
		return nil, errors.NewProtocolError(
			errors.ProtocolErrorInvalidStatusLine,
			fmt.Sprintf("invalid status code: %s", statusParts[1]),
		)
	}

	head := &ResponseHead{
		Proto:      string(statusParts[0]),
		StatusCode: statusCode,
	}
	if len(statusParts) == 3 {
		head.StatusMessage = string(statusParts[2])
	}
	return head, nil
}

func (p *Http1Protocol) bodyReader(head *ResponseHead, method string) io.Reader {
	switch {
	case method == "HEAD" || bodyless(head.StatusCode):
		return bytes.NewReader(nil)
	case head.Chunked:
		return httputil.NewChunkedReader(p.reader)
	case head.ContentLength >= 0:
		return io.LimitReader(p.reader, head.ContentLength)
	default:
		// Delimited by connection close
		return p.reader
	}
}

// ReadBody reads response body bytes, returning io.EOF at the end of the body
func (p *Http1Protocol) ReadBody(buf []byte) (int, error) {
	if p.body == nil {
		return 0, io.EOF
	}
	n, err := p.body.Read(buf)
	if err == io.ErrUnexpectedEOF || (err == io.EOF && p.short()) {
		return n, errors.NewProtocolError(
			errors.ProtocolErrorIncompleteResponse,
			"connection closed before complete response received",
		)
	}
	if err != nil && err != io.EOF && !isHttpError(err) {
		return n, errors.NewProtocolError(errors.ProtocolErrorInvalidChunkedEncoding, err.Error())
	}
	return n, err
}

// short reports a Content-Length body whose connection closed early
func (p *Http1Protocol) short() bool {
	lr, ok := p.body.(*io.LimitedReader)
	return ok && lr.N > 0
}

func isHttpError(err error) bool {
	var httpErr *errors.HttpError
	return stderrors.As(err, &httpErr)
}

// DiscardBody drains the rest of the response body
func (p *Http1Protocol) DiscardBody() (int, error) {
	buf := make([]byte, 512)
	total := 0
	for {
		n, err := p.ReadBody(buf)
		total += n
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
