package http

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

const maxEventSize = 1 << 20

// eventReader splits a text/event-stream body into message payloads.
// Only data fields are kept; comments and other fields are skipped.
type eventReader struct {
	sc   *bufio.Scanner
	data []string
}

func newEventReader(r io.Reader) *eventReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxEventSize)
	return &eventReader{sc: sc}
}

// Next returns the payload of the next complete event. Multiple data lines
// are joined with "\n". It returns io.EOF when the stream ends; a partial
// event without its blank-line terminator is dropped.
func (r *eventReader) Next() ([]byte, error) {
	for r.sc.Scan() {
		line := strings.TrimSuffix(r.sc.Text(), "\r")
		switch {
		case line == "":
			if len(r.data) == 0 {
				continue
			}
			payload := strings.Join(r.data, "\n")
			r.data = r.data[:0]
			return []byte(payload), nil
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "data:"):
			v := strings.TrimPrefix(line, "data:")
			r.data = append(r.data, strings.TrimPrefix(v, " "))
		}
	}
	if err := r.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// writeEvent writes one data-only event.
func writeEvent(w io.Writer, payload []byte) error {
	var buf bytes.Buffer
	for _, line := range bytes.Split(payload, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}
