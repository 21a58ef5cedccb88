package protocol

import "encoding/json"

// Player HTTP surface request/response bodies. Every response carries an
// error code (0 = ok) and a free-text message, matching the snapshot schema
// version on the wire.

// Error codes returned by the player surface.
const (
	ErrNone           = 0
	ErrNotLoggedIn    = 1001
	ErrNoGame         = 1002
	ErrGameNotStarted = 1003
	ErrWrongState     = 1004
	ErrTurnFailed     = 1005
)

type LoginRequest struct {
	User string `json:"user"`
	Game string `json:"game"`
}

type LoginResponse struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

type StartRequest struct {
	User  string `json:"user"`
	Game  string `json:"game"`
	Actor string `json:"actor"`
}

type StartResponse struct {
	Error    int              `json:"error"`
	Message  string           `json:"message"`
	Messages []SessionMessage `json:"client_messages,omitempty"`
}

type GameplayRequest struct {
	User  string `json:"user"`
	Game  string `json:"game"`
	Input string `json:"input"`
}

type GameplayResponse struct {
	Error    int              `json:"error"`
	Message  string           `json:"message"`
	Messages []SessionMessage `json:"client_messages,omitempty"`
}

type TransDungeonRequest struct {
	User string `json:"user"`
	Game string `json:"game"`
}

type TransDungeonResponse struct {
	Error    int              `json:"error"`
	Message  string           `json:"message"`
	Messages []SessionMessage `json:"client_messages,omitempty"`
}

// SessionMessage is one entry of the per-player feed. Seq is strictly
// increasing per (user, game) with no gaps.
type SessionMessage struct {
	Seq  uint64          `json:"sequence_id"`
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Session message types.
const (
	SessionAgentEvent  = "AGENT_EVENT"
	SessionStageState  = "STAGE_STATE"
	SessionCombatState = "COMBAT_STATE"
	SessionError       = "ERROR"
)

// AgentEventBody is the payload of an AGENT_EVENT session message. Fields
// not meaningful for the event kind are omitted.
type AgentEventBody struct {
	Kind    string `json:"kind"`
	Actor   string `json:"actor,omitempty"`
	Target  string `json:"target,omitempty"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

type SessionFeedResponse struct {
	Error    int              `json:"error"`
	Message  string           `json:"message"`
	Messages []SessionMessage `json:"messages"`
}

// StagesStateResponse maps stage name -> ordered actor names.
type StagesStateResponse struct {
	Error   int                 `json:"error"`
	Message string              `json:"message"`
	Stages  map[string][]string `json:"stages"`
}

type DungeonStateResponse struct {
	Error   int                 `json:"error"`
	Message string              `json:"message"`
	Stages  map[string][]string `json:"stages"`
	Dungeon DungeonState        `json:"dungeon"`
}

type DungeonState struct {
	Levels   []string `json:"levels"`
	Cursor   int      `json:"cursor"`
	Defeated bool     `json:"defeated"`
}
