// Package agentctx keeps the per-agent conversation logs: one system message
// set at kickoff plus an ordered sequence of human/AI messages. The store is
// owned by the turn pipeline and is never touched concurrently.
package agentctx

import (
	"fmt"
	"sort"

	"stagecraft.ai/internal/protocol"
)

// Message is one conversation entry. The id is assigned by the store and is
// the identity used for targeted removal.
type Message struct {
	id      uint64
	Role    string
	Content string
	Tags    map[string]string
}

// ID exposes the store-assigned identity (stable within one store lifetime,
// regenerated on restore).
func (m Message) ID() uint64 { return m.id }

type agentLog struct {
	system   *Message
	messages []*Message
}

// Store holds the conversation log of every registered agent.
type Store struct {
	agents map[string]*agentLog
	nextID uint64
}

func NewStore() *Store {
	return &Store{agents: map[string]*agentLog{}}
}

// Register creates an empty log for the agent. Registering twice is an error:
// agent names are unique across the world.
func (s *Store) Register(agent string) error {
	if _, ok := s.agents[agent]; ok {
		return fmt.Errorf("agentctx: %q already registered", agent)
	}
	s.agents[agent] = &agentLog{}
	return nil
}

func (s *Store) Has(agent string) bool {
	_, ok := s.agents[agent]
	return ok
}

// Agents returns all registered agent names, sorted.
func (s *Store) Agents() []string {
	out := make([]string, 0, len(s.agents))
	for name := range s.agents {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Initialize sets the single system message. It fails if the agent already
// has one; the system prompt is immutable after kickoff.
func (s *Store) Initialize(agent, systemPrompt string) error {
	log, ok := s.agents[agent]
	if !ok {
		return fmt.Errorf("agentctx: unknown agent %q", agent)
	}
	if log.system != nil {
		return fmt.Errorf("agentctx: %q already initialized", agent)
	}
	log.system = &Message{id: s.allocID(), Role: protocol.RoleSystem, Content: systemPrompt}
	return nil
}

func (s *Store) Initialized(agent string) bool {
	log, ok := s.agents[agent]
	return ok && log.system != nil
}

// AppendHuman appends a human-role message carrying the given tag map.
func (s *Store) AppendHuman(agent, text string, tags map[string]string) error {
	return s.append(agent, protocol.RoleHuman, text, tags)
}

// AppendAI appends an AI-role message.
func (s *Store) AppendAI(agent, text string, tags map[string]string) error {
	return s.append(agent, protocol.RoleAI, text, tags)
}

func (s *Store) append(agent, role, text string, tags map[string]string) error {
	log, ok := s.agents[agent]
	if !ok {
		return fmt.Errorf("agentctx: unknown agent %q", agent)
	}
	var copied map[string]string
	if len(tags) > 0 {
		copied = make(map[string]string, len(tags))
		for k, v := range tags {
			copied[k] = v
		}
	}
	log.messages = append(log.messages, &Message{
		id:      s.allocID(),
		Role:    role,
		Content: text,
		Tags:    copied,
	})
	return nil
}

// Filter returns the human messages whose tag map contains key==value.
// The returned messages are live handles suitable for Remove.
func (s *Store) Filter(agent, key, value string) []Message {
	log, ok := s.agents[agent]
	if !ok {
		return nil
	}
	var out []Message
	for _, m := range log.messages {
		if m.Role != protocol.RoleHuman {
			continue
		}
		if v, ok := m.Tags[key]; ok && v == value {
			out = append(out, *m)
		}
	}
	return out
}

// Remove deletes the given messages (matched by identity) from the log.
// The system message cannot be removed this way.
func (s *Store) Remove(agent string, messages []Message) {
	log, ok := s.agents[agent]
	if !ok || len(messages) == 0 {
		return
	}
	drop := make(map[uint64]bool, len(messages))
	for _, m := range messages {
		drop[m.id] = true
	}
	kept := log.messages[:0]
	for _, m := range log.messages {
		if !drop[m.id] {
			kept = append(kept, m)
		}
	}
	log.messages = kept
}

// DiscardLastExchange drops the trailing AI reply plus the human messages
// immediately before it, returning the removed messages for inspection. If
// the log does not end with an AI message nothing is removed: the exchange is
// incomplete and may still be settled.
func (s *Store) DiscardLastExchange(agent string) []Message {
	log, ok := s.agents[agent]
	if !ok || len(log.messages) == 0 {
		return nil
	}
	last := log.messages[len(log.messages)-1]
	if last.Role != protocol.RoleAI {
		return nil
	}
	cut := len(log.messages) - 1
	for cut > 0 && log.messages[cut-1].Role == protocol.RoleHuman {
		cut--
	}
	removed := make([]Message, 0, len(log.messages)-cut)
	for _, m := range log.messages[cut:] {
		removed = append(removed, *m)
	}
	log.messages = log.messages[:cut]
	return removed
}

// Snapshot returns an immutable copy of the full sequence, system message
// first. Mutating the result does not affect the store.
func (s *Store) Snapshot(agent string) []Message {
	log, ok := s.agents[agent]
	if !ok {
		return nil
	}
	out := make([]Message, 0, len(log.messages)+1)
	if log.system != nil {
		out = append(out, copyMessage(log.system))
	}
	for _, m := range log.messages {
		out = append(out, copyMessage(m))
	}
	return out
}

// Len reports the number of messages including the system message.
func (s *Store) Len(agent string) int {
	log, ok := s.agents[agent]
	if !ok {
		return 0
	}
	n := len(log.messages)
	if log.system != nil {
		n++
	}
	return n
}

// Context returns the conversation as wire messages for a chat request,
// excluding the system message (shipped separately as system_prompt).
func (s *Store) Context(agent string) []protocol.ContextMessage {
	log, ok := s.agents[agent]
	if !ok {
		return nil
	}
	out := make([]protocol.ContextMessage, 0, len(log.messages))
	for _, m := range log.messages {
		out = append(out, protocol.ContextMessage{Role: m.Role, Content: m.Content, Tags: m.Tags})
	}
	return out
}

// SystemPrompt returns the system message content, or "" before kickoff.
func (s *Store) SystemPrompt(agent string) string {
	log, ok := s.agents[agent]
	if !ok || log.system == nil {
		return ""
	}
	return log.system.Content
}

func (s *Store) allocID() uint64 {
	s.nextID++
	return s.nextID
}

func copyMessage(m *Message) Message {
	out := Message{id: m.id, Role: m.Role, Content: m.Content}
	if len(m.Tags) > 0 {
		out.Tags = make(map[string]string, len(m.Tags))
		for k, v := range m.Tags {
			out.Tags[k] = v
		}
	}
	return out
}
