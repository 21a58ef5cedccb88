// Package gametest drives a complete game through its exported surface with
// a scripted chat client, the way the transport layer would. No test in here
// reaches into unexported pipeline state.
package gametest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"

	"stagecraft.ai/internal/chatpool"
	"stagecraft.ai/internal/protocol"
	"stagecraft.ai/internal/sim/components"
	"stagecraft.ai/internal/sim/game"
	"stagecraft.ai/internal/sim/scenario"
	"stagecraft.ai/internal/sim/tuning"
)

var errWorkerDown = errors.New("worker unreachable")

// scriptedChat satisfies game.ChatClient with canned replies. Replies queued
// with Script are consumed in call order; agents without a queued reply fall
// back to their default, which starts as the empty plan object.
type scriptedChat struct {
	queues   map[string][]string
	defaults map[string]string
	failing  map[string]bool
	calls    map[string]int
}

func newScriptedChat() *scriptedChat {
	return &scriptedChat{
		queues:   map[string][]string{},
		defaults: map[string]string{},
		failing:  map[string]bool{},
		calls:    map[string]int{},
	}
}

func (c *scriptedChat) Gather(_ context.Context, handlers []*chatpool.Handler) {
	for _, h := range handlers {
		c.calls[h.AgentName]++
		if c.failing[h.AgentName] {
			h.Err = errWorkerDown
			continue
		}
		if q := c.queues[h.AgentName]; len(q) > 0 {
			h.Reply = q[0]
			c.queues[h.AgentName] = q[1:]
			continue
		}
		if d, ok := c.defaults[h.AgentName]; ok {
			h.Reply = d
			continue
		}
		h.Reply = "{}"
	}
}

// Script queues replies for the agent, consumed first-in first-out.
func (c *scriptedChat) Script(agent string, replies ...string) {
	c.queues[agent] = append(c.queues[agent], replies...)
}

// Fail makes every call to the agent come back as a pool failure.
func (c *scriptedChat) Fail(agents ...string) {
	for _, a := range agents {
		c.failing[a] = true
	}
}

// Calls reports how many requests the agent has received.
func (c *scriptedChat) Calls(agent string) int { return c.calls[agent] }

// harness is one booted and started game. The fixture world is a town square
// with the player and two companions, a garden next door, and a one-level
// dungeon holding a single monster.
type harness struct {
	t    *testing.T
	chat *scriptedChat
	game *game.Game
}

const (
	player    = "Ada"
	companion = "Brin"
	bystander = "Cole"
	neighbor  = "Dorn"
	monster   = "Grix"

	homeStage    = "Square"
	gardenStage  = "Garden"
	dungeonStage = "Cave"
)

func fixtureScenario() scenario.Definition {
	return scenario.Definition{
		Stages: []scenario.Stage{
			{Name: homeStage, SystemPrompt: "stage: square", KickOff: "dawn", Next: []string{gardenStage}},
			{Name: gardenStage, SystemPrompt: "stage: garden", KickOff: "dew", Next: []string{homeStage}},
			{Name: dungeonStage, SystemPrompt: "stage: cave", KickOff: "dark", Dungeon: true},
		},
		Actors: []scenario.Actor{
			{Name: player, SystemPrompt: "ada", KickOff: "wake", BaseForm: "tall", Stage: homeStage, MaxHP: 60, Damage: 10, Defense: 5,
				Items: []scenario.Item{{Name: "Healing Draught", Type: "consumable", Count: 2}}},
			{Name: companion, SystemPrompt: "brin", KickOff: "wake", BaseForm: "quick", Stage: homeStage, MaxHP: 40, Damage: 8, Defense: 3},
			{Name: bystander, SystemPrompt: "cole", KickOff: "wake", BaseForm: "quiet", Stage: homeStage, MaxHP: 40, Damage: 8, Defense: 3},
			{Name: neighbor, SystemPrompt: "dorn", KickOff: "wake", BaseForm: "old", Stage: gardenStage, MaxHP: 40, Damage: 8, Defense: 3},
			{Name: monster, SystemPrompt: "grix", KickOff: "lurk", BaseForm: "scaled", Stage: dungeonStage, MaxHP: 20, Damage: 6, Defense: 1},
		},
		Dungeon: []string{dungeonStage},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	chat := newScriptedChat()
	g := game.New("tester", "fixture", chat, tuning.Defaults(), log.New(io.Discard, "", 0))
	if err := g.Boot(fixtureScenario()); err != nil {
		t.Fatalf("boot: %v", err)
	}
	if err := g.Start(context.Background(), player); err != nil {
		t.Fatalf("start: %v", err)
	}
	return &harness{t: t, chat: chat, game: g}
}

func (h *harness) homeTurn(input string) {
	h.t.Helper()
	if err := h.game.RunHomeTurn(context.Background(), input); err != nil {
		h.t.Fatalf("home turn %q: %v", input, err)
	}
}

func (h *harness) dungeonTurn(input string) {
	h.t.Helper()
	if err := h.game.RunDungeonTurn(context.Background(), input); err != nil {
		h.t.Fatalf("dungeon turn %q: %v", input, err)
	}
}

// memoryLens captures every agent's conversation length, for monotonicity
// and exact-growth assertions.
func (h *harness) memoryLens() map[string]int {
	out := map[string]int{}
	for _, name := range h.game.Agents().Agents() {
		out[name] = h.game.Agents().Len(name)
	}
	return out
}

var actorQuery = donburi.NewQuery(filter.Contains(components.ActorComponent))

// attrs reads an actor's combat attributes straight off the entity store.
func (h *harness) attrs(name string) components.Attributes {
	h.t.Helper()
	var out *components.Attributes
	actorQuery.Each(h.game.World(), func(e *donburi.Entry) {
		if components.ActorComponent.Get(e).Name == name {
			out = components.AttributesComponent.Get(e)
		}
	})
	if out == nil {
		h.t.Fatalf("no actor %q", name)
	}
	return *out
}

func (h *harness) isDead(name string) bool {
	h.t.Helper()
	dead := false
	found := false
	actorQuery.Each(h.game.World(), func(e *donburi.Entry) {
		if components.ActorComponent.Get(e).Name == name {
			found = true
			dead = e.HasComponent(components.DeathTag)
		}
	})
	if !found {
		h.t.Fatalf("no actor %q", name)
	}
	return dead
}

// agentEvents decodes the AGENT_EVENT feed entries appended after the
// cursor.
func (h *harness) agentEvents(sinceSeq uint64) []protocol.AgentEventBody {
	h.t.Helper()
	var out []protocol.AgentEventBody
	for _, m := range h.game.Queue().Since(sinceSeq) {
		if m.Type != protocol.SessionAgentEvent {
			continue
		}
		var body protocol.AgentEventBody
		if err := json.Unmarshal(m.Body, &body); err != nil {
			h.t.Fatalf("decode agent event: %v", err)
		}
		out = append(out, body)
	}
	return out
}

// eventKinds counts an agent's received events by kind tag.
func (h *harness) eventKinds(agent string) map[string]int {
	out := map[string]int{}
	for _, m := range h.game.Agents().Snapshot(agent) {
		if m.Role != protocol.RoleHuman {
			continue
		}
		if kind, ok := m.Tags["kind"]; ok {
			out[kind]++
		}
	}
	return out
}
