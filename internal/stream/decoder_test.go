package stream

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, input string) []Event {
	t.Helper()
	dec := NewDecoder(strings.NewReader(input))
	var events []Event
	for {
		ev, err := dec.Decode()
		if err == io.EOF {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestDecoderNamedEvents(t *testing.T) {
	input := "event: new-message\ndata: {\"id\":\"m1\",\"content\":\"Hel\"}\n\n" +
		": keep-alive\n\n" +
		"event: new-message\r\ndata: {\"id\":\"m1\",\"content\":\"lo\"}\r\n\r\n"

	events := decodeAll(t, input)
	require.Len(t, events, 2)
	assert.Equal(t, EventNewMessage, events[0].Name)
	assert.JSONEq(t, `{"id":"m1","content":"Hel"}`, string(events[0].Data))
	assert.JSONEq(t, `{"id":"m1","content":"lo"}`, string(events[1].Data))
}

func TestDecoderMultilineDataAndDefaultName(t *testing.T) {
	events := decodeAll(t, "data: first\ndata:second\nid: 7\nretry: 100\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, EventMessage, events[0].Name)
	assert.Equal(t, "first\nsecond", string(events[0].Data))
}

func TestDecoderSkipsEventsWithoutData(t *testing.T) {
	events := decodeAll(t, "event: error\n\nevent: new-message\ndata: x\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, EventNewMessage, events[0].Name)
}

func TestDecoderDiscardsTrailingPartialEvent(t *testing.T) {
	events := decodeAll(t, "data: done\n\nevent: new-message\ndata: cut")
	require.Len(t, events, 1)
	assert.Equal(t, "done", string(events[0].Data))
}

func TestDecoderRejectsOversizedLine(t *testing.T) {
	input := "data: " + strings.Repeat("x", MaxEventBytes+1) + "\n\n"

	_, err := NewDecoder(strings.NewReader(input)).Decode()
	assert.ErrorIs(t, err, ErrEventTooLarge)
}

func TestDecoderRejectsOversizedEvent(t *testing.T) {
	line := "data: " + strings.Repeat("x", MaxEventBytes/4) + "\n"
	input := strings.Repeat(line, 5) + "\n"

	_, err := NewDecoder(strings.NewReader(input)).Decode()
	assert.ErrorIs(t, err, ErrEventTooLarge)
}

func TestDecoderAcceptsLargeEventUnderLimit(t *testing.T) {
	payload := strings.Repeat("y", 1<<20)
	events := decodeAll(t, "event: new-message\ndata: "+payload+"\n\n")
	require.Len(t, events, 1)
	assert.Len(t, events[0].Data, 1<<20)
}
