package game

import (
	"fmt"

	"github.com/yohamta/donburi"

	"stagecraft.ai/internal/protocol"
	"stagecraft.ai/internal/sim/components"
)

// Dungeon is the ordered run of dungeon levels. The cursor points at the
// current level; completion advances it, a defeat ends the run.
type Dungeon struct {
	Levels   []string `json:"levels"`
	Cursor   int      `json:"cursor"`
	Defeated bool     `json:"defeated"`

	// HomeStage remembers where the party came from so it can return.
	HomeStage string `json:"home_stage,omitempty"`
}

// Current returns the current level's stage name.
func (d *Dungeon) Current() (string, bool) {
	if d.Defeated || d.Cursor < 0 || d.Cursor >= len(d.Levels) {
		return "", false
	}
	return d.Levels[d.Cursor], true
}

// Advance moves the cursor past the completed level.
func (d *Dungeon) Advance() { d.Cursor++ }

// Cleared reports whether every level has been completed.
func (d *Dungeon) Cleared() bool { return !d.Defeated && d.Cursor >= len(d.Levels) }

func (d *Dungeon) State() protocol.DungeonState {
	return protocol.DungeonState{
		Levels:   append([]string(nil), d.Levels...),
		Cursor:   d.Cursor,
		Defeated: d.Defeated,
	}
}

// TransDungeon moves the player's party from its home stage into the current
// dungeon level and arms the combat sub-pipeline. The party is every living
// actor sharing the player's stage.
func (g *Game) TransDungeon() error {
	if !g.Started() {
		return fmt.Errorf("game not started")
	}
	if g.CombatActive() {
		return fmt.Errorf("combat already in progress")
	}
	level, ok := g.dungeon.Current()
	if !ok {
		return fmt.Errorf("no dungeon level available")
	}
	pe, ok := g.actorEntry(g.player)
	if !ok {
		return fmt.Errorf("no such actor %q", g.player)
	}
	home := components.ActorComponent.Get(pe).CurrentStage
	if home == level {
		return fmt.Errorf("party is already in %s", level)
	}
	g.dungeon.HomeStage = home

	party := g.livingOccupants(home)
	defenders := g.livingOccupants(level)
	for _, name := range party {
		fromActors := g.occupants(home)
		toActors := g.occupants(level)
		if err := g.moveActor(name, level); err != nil {
			return err
		}
		transStageEvents.Publish(g.world, TransStageEvent{
			Actor: name, From: home, To: level,
			FromActors: fromActors, ToActors: toActors,
		})
	}
	g.armCombat(party, defenders)
	g.dispatchEvents()
	g.pushStageState()
	return nil
}

// TransHome returns the surviving party to its home stage after a level is
// resolved. Fails while combat is still running.
func (g *Game) TransHome() error {
	if !g.Started() {
		return fmt.Errorf("game not started")
	}
	if g.CombatActive() {
		return fmt.Errorf("combat still in progress")
	}
	home := g.dungeon.HomeStage
	if home == "" {
		return fmt.Errorf("party is not in a dungeon")
	}
	pe, ok := g.actorEntry(g.player)
	if !ok {
		return fmt.Errorf("no such actor %q", g.player)
	}
	level := components.ActorComponent.Get(pe).CurrentStage
	for _, name := range g.livingOccupants(level) {
		fromActors := g.occupants(level)
		toActors := g.occupants(home)
		if err := g.moveActor(name, home); err != nil {
			return err
		}
		transStageEvents.Publish(g.world, TransStageEvent{
			Actor: name, From: level, To: home,
			FromActors: fromActors, ToActors: toActors,
		})
	}
	g.dungeon.HomeStage = ""
	g.dispatchEvents()
	g.pushStageState()
	return nil
}

// armCombat tags both sides as combat participants and gives them the
// transient combat components.
func (g *Game) armCombat(party, defenders []string) {
	for _, name := range append(append([]string(nil), party...), defenders...) {
		e, ok := g.actorEntry(name)
		if !ok || e.HasComponent(components.DeathTag) {
			continue
		}
		if !e.HasComponent(components.CombatParticipantTag) {
			e.AddComponent(components.CombatParticipantTag)
		}
		if !e.HasComponent(components.RoundEventsComponent) {
			donburi.Add(e, components.RoundEventsComponent, &components.RoundEvents{})
		}
		if !e.HasComponent(components.AttributesComponent) {
			donburi.Add(e, components.AttributesComponent, &components.Attributes{
				MaxHP:   g.tun.Combat.BaseHP,
				HP:      g.tun.Combat.BaseHP,
				Damage:  g.tun.Combat.BaseDamage,
				Defense: g.tun.Combat.BaseDefense,
			})
		}
	}
	g.combat = newCombatRound(party, defenders)
}

// disarmCombat strips the transient combat components from every
// participant.
func (g *Game) disarmCombat() {
	var entries []*donburi.Entry
	actorQuery.Each(g.world, func(e *donburi.Entry) {
		if e.HasComponent(components.CombatParticipantTag) {
			entries = append(entries, e)
		}
	})
	for _, e := range entries {
		e.RemoveComponent(components.CombatParticipantTag)
		if e.HasComponent(components.RoundEventsComponent) {
			e.RemoveComponent(components.RoundEventsComponent)
		}
	}
	g.combat = nil
}

// pushStageState mirrors the stage mapping onto the session feed so the
// client can redraw without polling the state endpoint.
func (g *Game) pushStageState() {
	g.queue.Append(protocol.SessionStageState, protocol.StagesStateResponse{
		Stages: g.StagesState(),
	})
}
