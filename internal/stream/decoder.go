package stream

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// MaxEventBytes caps a single line and the data of a single event.
const MaxEventBytes = 4 << 20

// ErrEventTooLarge is returned when an event exceeds MaxEventBytes.
var ErrEventTooLarge = errors.New("sse event exceeds size limit")

// Decoder reads text/event-stream frames.
type Decoder struct {
	s *bufio.Scanner
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), MaxEventBytes)
	return &Decoder{s: s}
}

// Decode returns the next dispatched event. Comments, id and retry fields are
// ignored; an event without data is never dispatched. A partial event at end
// of input is discarded and io.EOF returned.
func (d *Decoder) Decode() (Event, error) {
	var (
		name    string
		data    bytes.Buffer
		hasData bool
	)

	for d.s.Scan() {
		line := d.s.Text()

		if line == "" {
			if hasData {
				if name == "" {
					name = EventMessage
				}
				return Event{Name: name, Data: bytes.TrimSuffix(data.Bytes(), []byte("\n"))}, nil
			}
			name = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			if data.Len()+len(value)+1 > MaxEventBytes {
				return Event{}, ErrEventTooLarge
			}
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		}
	}

	if err := d.s.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return Event{}, ErrEventTooLarge
		}
		return Event{}, err
	}
	return Event{}, io.EOF
}
