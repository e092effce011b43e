// Package sse reads Server-Sent Events from a streaming HTTP response.
//
// Reader frames raw lines into (event, data) pairs. Stream owns the HTTP
// response behind a Reader and exposes it as a one-shot iterator that always
// releases the connection.
package sse

import (
	"bufio"
	"io"
	"strings"
)

const maxLineSize = 1 << 20 // 1 MB

// Event is a single SSE event with an optional type and data payload.
type Event struct {
	Type string // value of the "event:" field (may be empty)
	Data string // value of the "data:" field(s), joined with "\n"
}

// Reader reads SSE events from an io.Reader.
type Reader struct {
	scanner *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	return &Reader{scanner: sc}
}

// Next returns the next event. Returns (Event{}, io.EOF) at end of stream.
// An event left unterminated by the final blank line is still delivered.
func (r *Reader) Next() (Event, error) {
	var ev Event
	var dataLines []string
	pending := false

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if pending {
				ev.Data = strings.Join(dataLines, "\n")
				return ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue // comment / keep-alive
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Type = value
			pending = true
		case "data":
			dataLines = append(dataLines, value)
			pending = true
		}
		// id: and retry: fields are ignored
	}

	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	if pending {
		ev.Data = strings.Join(dataLines, "\n")
		return ev, nil
	}
	return Event{}, io.EOF
}
