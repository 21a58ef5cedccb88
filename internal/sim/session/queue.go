// Package session holds the per-player append-only message feed. Sequence
// ids are monotonically increasing with no gaps; messages are never mutated
// or removed during a game.
package session

import (
	"encoding/json"
	"sync"

	"stagecraft.ai/internal/protocol"
)

// Queue is the feed for one (user, game) pair. Appends come from the turn
// pipeline; reads may come from the feed transports concurrently, so the
// queue carries its own lock. Readers get copies.
type Queue struct {
	mu       sync.Mutex
	messages []protocol.SessionMessage
	nextSeq  uint64

	subs map[chan protocol.SessionMessage]struct{}
}

func NewQueue() *Queue {
	return &Queue{nextSeq: 1, subs: map[chan protocol.SessionMessage]struct{}{}}
}

// Append adds a message of the given type, assigning the next sequence id.
func (q *Queue) Append(msgType string, body any) (protocol.SessionMessage, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return protocol.SessionMessage{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	msg := protocol.SessionMessage{Seq: q.nextSeq, Type: msgType, Body: raw}
	q.nextSeq++
	q.messages = append(q.messages, msg)
	for ch := range q.subs {
		select {
		case ch <- msg:
		default:
			// Slow subscriber; it will catch up via Since.
		}
	}
	return msg, nil
}

// Since returns the tail of the feed with sequence id strictly greater than
// the cursor.
func (q *Queue) Since(lastSeq uint64) []protocol.SessionMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	// Seq ids are 1-based and dense, so index math suffices.
	if lastSeq >= q.nextSeq-1 {
		return nil
	}
	tail := q.messages[lastSeq:]
	out := make([]protocol.SessionMessage, len(tail))
	copy(out, tail)
	return out
}

// Len reports the number of messages appended so far.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// LastSeq returns the highest sequence id assigned, 0 if empty.
func (q *Queue) LastSeq() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextSeq - 1
}

// Subscribe registers a live feed channel (used by the websocket transport).
// The caller must Unsubscribe when done.
func (q *Queue) Subscribe(buf int) chan protocol.SessionMessage {
	ch := make(chan protocol.SessionMessage, buf)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subs[ch] = struct{}{}
	return ch
}

func (q *Queue) Unsubscribe(ch chan protocol.SessionMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.subs[ch]; ok {
		delete(q.subs, ch)
		close(ch)
	}
}
