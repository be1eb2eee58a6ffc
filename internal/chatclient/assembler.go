package chatclient

import (
	"time"

	"github.com/zhouzirui/fsy-chat/internal/model/chat"
)

// Assembler builds the ordered message log from stream chunks and local entries.
// It is not safe for concurrent use; Client serialises access.
type Assembler struct {
	messages []chat.Message
	ids      map[string]struct{}
	// current is the log index of the message receiving chunks, or -1.
	current   int
	currentID string
}

// NewAssembler returns an empty log.
func NewAssembler() *Assembler {
	a := &Assembler{}
	a.Reset()
	return a
}

// Reset drops every entry and the streaming pointer.
func (a *Assembler) Reset() {
	a.messages = nil
	a.ids = make(map[string]struct{})
	a.current = -1
	a.currentID = ""
}

// Apply routes a chunk. A chunk for the current streaming message is appended
// to it; any other id starts a new assistant message, which is the only
// signal that the previous reply is complete. started reports that case.
// Chunks without an id, or naming an earlier finished message, are rejected.
func (a *Assembler) Apply(chunk chat.StreamChunk, at time.Time) (msg chat.Message, started, ok bool) {
	if chunk.ID == "" {
		return chat.Message{}, false, false
	}

	if a.current >= 0 && chunk.ID == a.currentID {
		a.messages[a.current].Content += chunk.Content
		return a.messages[a.current], false, true
	}

	if _, seen := a.ids[chunk.ID]; seen {
		return chat.Message{}, false, false
	}

	msg = chat.Message{
		ID:        chunk.ID,
		Role:      chat.RoleAssistant,
		Content:   chunk.Content,
		Timestamp: at,
	}
	a.messages = append(a.messages, msg)
	a.ids[msg.ID] = struct{}{}
	a.current = len(a.messages) - 1
	a.currentID = msg.ID
	return msg, true, true
}

// Append adds a locally produced entry. It reports false for a duplicate id.
func (a *Assembler) Append(msg chat.Message) bool {
	if _, seen := a.ids[msg.ID]; seen {
		return false
	}
	a.messages = append(a.messages, msg)
	a.ids[msg.ID] = struct{}{}
	return true
}

// CurrentID returns the id of the message receiving chunks.
func (a *Assembler) CurrentID() string { return a.currentID }

// Len returns the number of entries.
func (a *Assembler) Len() int { return len(a.messages) }

// Messages returns a copy of the log.
func (a *Assembler) Messages() []chat.Message {
	return append([]chat.Message(nil), a.messages...)
}
