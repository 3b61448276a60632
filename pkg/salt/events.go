package salt

import (
	"bufio"
	"io"
	"strings"
)

// maxEventBytes bounds a single event frame; grains reports for large hosts
// run to megabytes.
const maxEventBytes = 16 << 20

// Event is one message observed on the master event bus.
type Event struct {
	Tag  string
	Data string
}

// EventStream reads the master's server-sent event feed. The master frames
// each message as "tag: <tag>" and "data: <json>" lines separated by a blank
// line.
type EventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// NewEventStream wraps a raw feed body.
func NewEventStream(body io.ReadCloser) *EventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventBytes)
	return &EventStream{body: body, scanner: scanner}
}

// Next blocks until the next event arrives. It returns io.EOF when the
// stream ends.
func (s *EventStream) Next() (*Event, error) {
	var tag, data string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case line == "":
			if data != "" {
				return &Event{Tag: tag, Data: data}, nil
			}
			tag, data = "", ""
		case strings.HasPrefix(line, "tag: "):
			tag = strings.TrimPrefix(line, "tag: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		default:
			// retry hints and comments are ignored
		}
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close terminates the stream. Any blocked Next call returns.
func (s *EventStream) Close() error {
	return s.body.Close()
}
