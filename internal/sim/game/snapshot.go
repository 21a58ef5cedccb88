package game

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/yohamta/donburi"

	"stagecraft.ai/internal/protocol"
	"stagecraft.ai/internal/sim/agentctx"
	"stagecraft.ai/internal/sim/components"
)

// SnapshotDoc is the durable world document. Serialization is deterministic:
// entities are ordered by name and map keys sort on marshal, so the same
// world always produces the same bytes.
type SnapshotDoc struct {
	SchemaVersion string                        `json:"schema_version"`
	AgentsContext map[string]agentctx.AgentDump `json:"agents_context"`
	Entities      []EntityRecord                `json:"entities_serialization"`
	Dungeon       Dungeon                       `json:"dungeon"`
	Player        string                        `json:"player,omitempty"`
	Turn          uint64                        `json:"turn,omitempty"`
	Combat        *CombatDump                   `json:"combat,omitempty"`
}

type EntityRecord struct {
	Components map[string]json.RawMessage `json:"components"`
}

// CombatDump preserves combat membership across a mid-dungeon checkpoint.
// Hands are not preserved; the round re-draws after restore.
type CombatDump struct {
	Party     []string `json:"party"`
	Defenders []string `json:"defenders"`
	Round     int      `json:"round"`
}

// ExportSnapshot captures the complete mutable state of the game.
func (g *Game) ExportSnapshot() (SnapshotDoc, error) {
	type namedEntry struct {
		name  string
		entry *donburi.Entry
	}
	var entries []namedEntry
	for _, q := range nameQueries {
		q.Each(g.world, func(e *donburi.Entry) {
			entries = append(entries, namedEntry{components.EntityName(e), e})
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	doc := SnapshotDoc{
		SchemaVersion: protocol.Version,
		AgentsContext: g.agents.Export(),
		Dungeon:       *g.dungeon,
		Player:        g.player,
		Turn:          g.turn,
	}
	for _, ne := range entries {
		doc.Entities = append(doc.Entities, EntityRecord{Components: components.Serialize(ne.entry)})
	}
	if c := g.combat; c != nil {
		doc.Combat = &CombatDump{
			Party:     append([]string(nil), c.party...),
			Defenders: append([]string(nil), c.defenders...),
			Round:     c.round,
		}
	}
	return doc, nil
}

// ImportSnapshot rebuilds the game from a document. The receiver must be
// freshly constructed; restoring over a live world is an error.
func (g *Game) ImportSnapshot(doc SnapshotDoc) error {
	if doc.SchemaVersion != protocol.Version {
		return fmt.Errorf("snapshot schema %q, want %q", doc.SchemaVersion, protocol.Version)
	}
	if len(g.actorNames())+len(g.stageNames()) > 0 {
		return fmt.Errorf("world already booted")
	}
	for i, rec := range doc.Entities {
		e := g.newEntry()
		if err := components.Deserialize(e, rec.Components); err != nil {
			return fmt.Errorf("entity %d: %w", i, err)
		}
	}
	g.agents = agentctx.Import(doc.AgentsContext)
	d := doc.Dungeon
	g.dungeon = &d
	g.player = doc.Player
	g.turn = doc.Turn
	if doc.Combat != nil {
		c := newCombatRound(
			append([]string(nil), doc.Combat.Party...),
			append([]string(nil), doc.Combat.Defenders...),
		)
		c.round = doc.Combat.Round
		g.combat = c
	}
	return nil
}
