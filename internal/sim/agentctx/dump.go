package agentctx

import "stagecraft.ai/internal/protocol"

// DumpMessage is the serialized form of one conversation entry.
type DumpMessage struct {
	Role    string            `json:"role"`
	Content string            `json:"content"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// AgentDump is the serialized log of one agent: system prompt plus ordered
// messages, as stored in world snapshots.
type AgentDump struct {
	System   string        `json:"system,omitempty"`
	Messages []DumpMessage `json:"messages"`
}

// Export serializes the whole store.
func (s *Store) Export() map[string]AgentDump {
	out := make(map[string]AgentDump, len(s.agents))
	for name, log := range s.agents {
		d := AgentDump{Messages: make([]DumpMessage, 0, len(log.messages))}
		if log.system != nil {
			d.System = log.system.Content
		}
		for _, m := range log.messages {
			d.Messages = append(d.Messages, DumpMessage{Role: m.Role, Content: m.Content, Tags: m.Tags})
		}
		out[name] = d
	}
	return out
}

// Import rebuilds a store from a dump. Message ids are regenerated; only
// ordering and content are contractual across a snapshot round-trip.
func Import(dump map[string]AgentDump) *Store {
	s := NewStore()
	for name, d := range dump {
		_ = s.Register(name)
		if d.System != "" {
			_ = s.Initialize(name, d.System)
		}
		for _, m := range d.Messages {
			switch m.Role {
			case protocol.RoleHuman:
				_ = s.AppendHuman(name, m.Content, m.Tags)
			case protocol.RoleAI:
				_ = s.AppendAI(name, m.Content, m.Tags)
			}
		}
	}
	return s
}
