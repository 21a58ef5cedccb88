package protocol

import "encoding/json"

const Version = "0.0.1"

// Message roles in an agent's conversation log.
const (
	RoleSystem = "system"
	RoleHuman  = "human"
	RoleAI     = "ai"
)

// ContextMessage is one entry of the prior-conversation snapshot shipped to a
// chat worker. Tags ride along so workers can echo them back for debugging;
// they carry no meaning on the worker side.
type ContextMessage struct {
	Role    string            `json:"role"`
	Content string            `json:"content"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// ChatRequest is the chat-worker endpoint payload (outbound).
// Workers are stateless: the full context travels with every request, so the
// call is idempotent and safe to retry.
type ChatRequest struct {
	SystemPrompt string           `json:"system_prompt"`
	Context      []ContextMessage `json:"context"`
	UserMessage  string           `json:"user_message"`
}

// ChatResponse is the chat-worker reply.
type ChatResponse struct {
	Messages []ReplyMessage `json:"messages"`
}

type ReplyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Output joins the reply messages into the single completion string the
// pipeline consumes. Most workers return exactly one message.
func (r ChatResponse) Output() string {
	switch len(r.Messages) {
	case 0:
		return ""
	case 1:
		return r.Messages[0].Content
	}
	out := r.Messages[0].Content
	for _, m := range r.Messages[1:] {
		out += "\n" + m.Content
	}
	return out
}

func DecodeChatResponse(b []byte) (ChatResponse, error) {
	var r ChatResponse
	err := json.Unmarshal(b, &r)
	return r, err
}
