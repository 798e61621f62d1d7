package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/nczempin/httpc-conn/engine"
	"github.com/nczempin/httpc-conn/engine/enginetest"
	"github.com/nczempin/httpc-conn/errors"
	"github.com/nczempin/httpc-conn/transport"
)

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     *HttpRequest
		wantErr bool
	}{
		{"nil request", nil, true},
		{"empty url", &HttpRequest{Method: engine.MethodGet}, true},
		{"plain get", &HttpRequest{Method: engine.MethodGet, URL: "http://example.com"}, false},
		{"get with body", &HttpRequest{Method: engine.MethodGet, URL: "http://example.com", Body: []byte("x")}, true},
		{"head with body", &HttpRequest{Method: engine.MethodHead, URL: "http://example.com", Body: []byte("x")}, true},
		{"post without body", &HttpRequest{Method: engine.MethodPost, URL: "http://example.com"}, true},
		{"post with body", &HttpRequest{Method: engine.MethodPost, URL: "http://example.com", Body: []byte("data")}, false},
		{"delete without body", &HttpRequest{Method: engine.MethodDelete, URL: "http://example.com"}, false},
		{
			"matching content-length",
			&HttpRequest{Method: engine.MethodPut, URL: "http://example.com", Body: []byte("four"),
				Headers: []Header{{Name: "content-length", Value: "4"}}},
			false,
		},
		{
			"mismatched content-length",
			&HttpRequest{Method: engine.MethodPut, URL: "http://example.com", Body: []byte("four"),
				Headers: []Header{{Name: "Content-Length", Value: "5"}}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRequest(tt.req)
			if tt.wantErr {
				assert.True(t, errors.IsType(err, errors.ErrorInvalidArgument), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequestHeaders(t *testing.T) {
	req := &HttpRequest{Method: engine.MethodPost, Body: []byte("abc"), Headers: []Header{{Name: "X-A", Value: "1"}}}
	headers := requestHeaders(req)

	v, ok := findHeader(headers, "content-length")
	assert.True(t, ok)
	assert.Equal(t, "3", v)
	assert.Len(t, req.Headers, 1, "caller headers must not be modified")

	headers = requestHeaders(&HttpRequest{Method: engine.MethodGet})
	_, ok = findHeader(headers, "Content-Length")
	assert.False(t, ok)
}

func TestHttpClient_DoWithScriptedEngine(t *testing.T) {
	s := &enginetest.Session{Responses: []enginetest.Response{
		redirectResponse(301, "http://example.com/moved"),
		okResponse("created", enginetest.Header{Name: "X-Id", Value: "7"}),
	}}
	eng := enginetest.NewEngine(s)
	cfg := testConfig()
	cfg.FollowRedirectsPolicy = FollowAll
	c := NewHttpClient(cfg, eng)

	resp, err := c.Post(context.Background(), "http://example.com/items", []byte("payload"))
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "created", string(resp.Body))
	assert.Equal(t, int64(len("created")), resp.ContentLength)
	v, ok := resp.Header("x-id")
	assert.True(t, ok)
	assert.Equal(t, "7", v)

	assert.Equal(t, "payload", string(s.Body()))
	assert.Equal(t, []int64{7, 7}, s.OpenLengths)
	assert.Equal(t, 1, eng.Sessions)
	assert.Equal(t, 1, s.CleanupCalls)
}

func TestHttpClient_DoPropagatesFailures(t *testing.T) {
	writeErr := errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "broken pipe", nil)

	t.Run("write", func(t *testing.T) {
		s := &enginetest.Session{WriteErr: writeErr}
		c := NewHttpClient(testConfig(), enginetest.NewEngine(s))

		_, err := c.Post(context.Background(), "http://example.com/", []byte("body"))
		assert.ErrorIs(t, err, writeErr)
		assert.Equal(t, 1, s.CleanupCalls)
	})

	t.Run("construction", func(t *testing.T) {
		c := NewHttpClient(testConfig(), &enginetest.Engine{Err: errors.NewEngineError(errors.EngineNoMemory, "", nil)})

		_, err := c.Get(context.Background(), "http://example.com/")
		assert.True(t, errors.IsType(err, errors.ErrorConstruction))
	})

	t.Run("validation before any session", func(t *testing.T) {
		eng := enginetest.NewEngine(&enginetest.Session{})
		c := NewHttpClient(testConfig(), eng)

		_, err := c.Post(context.Background(), "http://example.com/", nil)
		assert.True(t, errors.IsType(err, errors.ErrorInvalidArgument))
		assert.Zero(t, eng.Sessions)
	})
}

func nativeConfig(kind transport.Kind, policy FollowRedirectsPolicy) Configuration {
	cfg := testConfig()
	cfg.Transport = string(kind)
	cfg.Timeout = 2 * time.Second
	cfg.FollowRedirectsPolicy = policy
	return cfg
}

func newNativeClient(kind transport.Kind, policy FollowRedirectsPolicy) *HttpClient {
	return NewHttpClient(nativeConfig(kind, policy), nil)
}

// forEachTransport runs fn against the built-in engine on every TCP transport,
// the default one included, skipping those this host cannot provide.
func forEachTransport(t *testing.T, fn func(t *testing.T, kind transport.Kind)) {
	for _, kind := range []transport.Kind{transport.KindNet, "", transport.KindUringV2} {
		name := string(kind)
		if name == "" {
			name = "default"
		}
		t.Run(name, func(t *testing.T) {
			trans, err := transport.New(kind, transport.Options{})
			if err != nil {
				if errors.IsType(err, errors.ErrorTransport) {
					t.Skipf("transport %q unavailable: %v", kind, err)
				}
				t.Fatalf("transport %q: %v", kind, err)
			}
			trans.Destroy()
			fn(t, kind)
		})
	}
}

func TestHttpClient_NativeRedirect(t *testing.T) {
	forEachTransport(t, testNativeRedirect)
}

func testNativeRedirect(t *testing.T, kind transport.Kind) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Hop", "start")
		http.Redirect(w, r, "/middle", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/middle", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusTemporaryRedirect)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Final", "reached")
		fmt.Fprint(w, "end of the line")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := newNativeClient(kind, FollowGetHead).Get(context.Background(), srv.URL+"/start")
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "end of the line", string(resp.Body))
	v, _ := resp.Header("X-Final")
	assert.Equal(t, "reached", v)
	_, ok := resp.Header("X-Hop")
	assert.False(t, ok)

	resp, err = newNativeClient(kind, FollowNone).Get(context.Background(), srv.URL+"/start")
	require.NoError(t, err)
	assert.Equal(t, 301, resp.StatusCode)
	v, _ = resp.Header("Location")
	assert.Equal(t, "/middle", v)
}

func TestHttpClient_NativePost(t *testing.T) {
	forEachTransport(t, testNativePost)
}

func testNativePost(t *testing.T, kind transport.Kind) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Received", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusAccepted)
		w.Write(body)
	}))
	defer srv.Close()

	payload := []byte(`{"name":"conn"}`)
	resp, err := newNativeClient(kind, FollowGetHead).Post(context.Background(), srv.URL, payload,
		Header{Name: "Content-Type", Value: "application/json"})
	require.NoError(t, err)

	assert.Equal(t, 202, resp.StatusCode)
	assert.Equal(t, payload, resp.Body)
	v, _ := resp.Header("X-Received")
	assert.Equal(t, strconv.Itoa(len(payload)), v)
}

func TestHttpClient_ConcurrentConnections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "path=%s", r.URL.Path)
	}))
	defer srv.Close()

	c := newNativeClient(transport.KindNet, FollowGetHead)
	const workers = 8
	bodies := make([]string, workers)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			resp, err := c.Get(ctx, fmt.Sprintf("%s/%d", srv.URL, i))
			if err != nil {
				return err
			}
			bodies[i] = string(resp.Body)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i, body := range bodies {
		assert.Equal(t, fmt.Sprintf("path=/%d", i), body)
	}
}

func TestConnection_NativeReuseAfterResponse(t *testing.T) {
	forEachTransport(t, testNativeReuseAfterResponse)
}

func testNativeReuseAfterResponse(t *testing.T, kind transport.Kind) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Trace", r.Header.Get("X-Trace"))
		fmt.Fprintf(w, "%s %d %s", r.Method, r.ContentLength, body)
	}))
	defer srv.Close()

	conn, err := NewConnection(nativeConfig(kind, FollowGetHead), nil)
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	require.NoError(t, conn.InitiateRequest(ctx, engine.MethodPost, srv.URL+"/first",
		[]Header{{Name: "Content-Length", Value: "4"}, {Name: "X-Trace", Value: "one"}}))
	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	require.NoError(t, conn.InitiateResponse(ctx))
	body, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "POST 4 ping", string(body))
	v, _ := conn.Header("X-Trace")
	assert.Equal(t, "one", v)

	require.NoError(t, conn.InitiateRequest(ctx, engine.MethodGet, srv.URL+"/second", nil))
	require.NoError(t, conn.InitiateResponse(ctx))
	assert.Equal(t, 200, conn.Status())
	body, err = io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "GET 0 ", string(body))
	v, _ = conn.Header("X-Trace")
	assert.Empty(t, v)
}
