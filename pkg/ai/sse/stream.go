package sse

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"
	"sync"

	"github.com/bitop-dev/chatstream/pkg/ai"
)

// maxErrorBody caps how much of a non-2xx body is read for the error message.
const maxErrorBody = 64 << 10

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Stream is one open event stream. It holds a single network connection
// until the iterator returned by Events finishes or Close is called.
type Stream struct {
	ctx      context.Context
	body     io.ReadCloser
	reader   *Reader
	consumed bool

	closeOnce sync.Once
	closeErr  error
}

// Open sends req bound to ctx and returns the response as a Stream.
// A non-2xx answer is returned as *ai.StatusError with the connection already
// released. When ctx is cancelled before the response arrives the returned
// error wraps ctx.Err(); callers treat that as an abort, not a failure.
func Open(ctx context.Context, client Doer, req *http.Request) (*Stream, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Join(ctx.Err(), err)
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, ai.NewStatusError(resp.StatusCode, body)
	}
	return &Stream{
		ctx:    ctx,
		body:   resp.Body,
		reader: NewReader(resp.Body),
	}, nil
}

// Events returns the stream's events as a lazy sequence. Each step yields the
// next event or a read error (after which the sequence ends). The sequence
// ends silently at end of stream and when ctx is cancelled, including while
// blocked waiting for the next chunk. The body is closed on every exit path.
//
// The sequence is not restartable: only the first call yields anything.
func (s *Stream) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if s.consumed {
			return
		}
		s.consumed = true
		defer s.Close()

		for {
			if s.ctx.Err() != nil {
				return
			}
			ev, err := s.reader.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				yield(Event{}, err)
				return
			}
			if s.ctx.Err() != nil {
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Close releases the connection. Safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
