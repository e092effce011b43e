package sse_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/bitop-dev/chatstream/pkg/ai"
	"github.com/bitop-dev/chatstream/pkg/ai/sse"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

type trackingBody struct {
	r      io.Reader
	closed atomic.Int32
}

func (b *trackingBody) Read(p []byte) (int, error) { return b.r.Read(p) }
func (b *trackingBody) Close() error               { b.closed.Add(1); return nil }

func respond(status int, body *trackingBody) sse.Doer {
	return doerFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: status, Body: body, Header: http.Header{}}, nil
	})
}

func newRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "http://upstream.test/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestOpen_NonSuccessStatus(t *testing.T) {
	body := &trackingBody{r: strings.NewReader(`{"error":{"message":"bad key","type":"auth","code":"invalid_api_key"}}`)}
	_, err := sse.Open(context.Background(), respond(401, body), newRequest(t))

	var se *ai.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("want *ai.StatusError, got %T (%v)", err, err)
	}
	if se.StatusCode != 401 || se.Message != "bad key" {
		t.Errorf("status error = %+v", se)
	}
	if body.closed.Load() != 1 {
		t.Errorf("body closed %d times, want 1", body.closed.Load())
	}
}

func TestStream_YieldsEventsAndReleases(t *testing.T) {
	body := &trackingBody{r: strings.NewReader("data: one\n\nevent: x\ndata: two\n\n")}
	st, err := sse.Open(context.Background(), respond(200, body), newRequest(t))
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for ev, err := range st.Events() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, ev.Type+"|"+ev.Data)
	}
	if strings.Join(got, ",") != "|one,x|two" {
		t.Errorf("events = %v", got)
	}
	if body.closed.Load() != 1 {
		t.Errorf("body closed %d times, want 1", body.closed.Load())
	}
}

func TestStream_NotRestartable(t *testing.T) {
	body := &trackingBody{r: strings.NewReader("data: one\n\n")}
	st, err := sse.Open(context.Background(), respond(200, body), newRequest(t))
	if err != nil {
		t.Fatal(err)
	}
	for range st.Events() {
	}
	n := 0
	for range st.Events() {
		n++
	}
	if n != 0 {
		t.Errorf("second iteration yielded %d events", n)
	}
	if err := st.Close(); err != nil {
		t.Errorf("Close after iteration: %v", err)
	}
	if body.closed.Load() != 1 {
		t.Errorf("body closed %d times, want 1", body.closed.Load())
	}
}

func TestStream_BreakReleases(t *testing.T) {
	body := &trackingBody{r: strings.NewReader("data: one\n\ndata: two\n\n")}
	st, err := sse.Open(context.Background(), respond(200, body), newRequest(t))
	if err != nil {
		t.Fatal(err)
	}
	for range st.Events() {
		break
	}
	if body.closed.Load() != 1 {
		t.Errorf("body closed %d times, want 1", body.closed.Load())
	}
}

func TestStream_ReadErrorSurfaces(t *testing.T) {
	boom := errors.New("connection reset")
	body := &trackingBody{r: io.MultiReader(strings.NewReader("data: a\n\n"), iotest.ErrReader(boom))}
	st, err := sse.Open(context.Background(), respond(200, body), newRequest(t))
	if err != nil {
		t.Fatal(err)
	}

	var data []string
	var gotErr error
	for ev, err := range st.Events() {
		if err != nil {
			gotErr = err
			continue
		}
		data = append(data, ev.Data)
	}
	if len(data) != 1 || data[0] != "a" {
		t.Errorf("data = %v", data)
	}
	if !errors.Is(gotErr, boom) {
		t.Errorf("err = %v, want %v", gotErr, boom)
	}
	if body.closed.Load() != 1 {
		t.Errorf("body closed %d times, want 1", body.closed.Load())
	}
}

func TestStream_AbortWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: first\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	st, err := sse.Open(ctx, srv.Client(), req)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	var events int
	var gotErr error
	go func() {
		defer close(done)
		for _, err := range st.Events() {
			if err != nil {
				gotErr = err
				continue
			}
			events++
			cancel()
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("iteration did not stop after abort")
	}
	if events != 1 {
		t.Errorf("events = %d, want 1", events)
	}
	if gotErr != nil {
		t.Errorf("abort surfaced as error: %v", gotErr)
	}
}

func TestOpen_AbortBeforeResponse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doer := doerFunc(func(r *http.Request) (*http.Response, error) {
		return nil, r.Context().Err()
	})
	_, err := sse.Open(ctx, doer, newRequest(t))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
