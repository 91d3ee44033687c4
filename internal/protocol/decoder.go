package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed is returned for a data frame that is not a JSON event.
var ErrMalformed = errors.New("protocol: malformed event")

// Decoder reads events from a server-sent event stream.
type Decoder struct {
	scanner *bufio.Scanner
	done    bool
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Decoder{scanner: scanner}
}

// Next returns the next known event. Unknown kinds and comment frames are
// skipped. It returns io.EOF after the [DONE] frame and io.ErrUnexpectedEOF
// if the stream ends without one.
func (d *Decoder) Next() (Event, error) {
	for {
		if d.done {
			return Event{}, io.EOF
		}

		data, err := d.frame()
		if err != nil {
			return Event{}, err
		}
		if data == "[DONE]" {
			d.done = true
			return Event{}, io.EOF
		}

		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if !ev.Type.Known() {
			continue
		}
		return ev, nil
	}
}

// frame reads lines up to the next blank line and returns the joined data
// fields of that frame. Frames without data are skipped.
func (d *Decoder) frame() (string, error) {
	var data []string

	for d.scanner.Scan() {
		line := d.scanner.Text()

		switch {
		case line == "":
			if len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := d.scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	if len(data) > 0 {
		return strings.Join(data, "\n"), nil
	}
	return "", io.ErrUnexpectedEOF
}
