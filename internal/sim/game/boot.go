package game

import (
	"context"
	"fmt"

	"github.com/yohamta/donburi"

	"stagecraft.ai/internal/sim/components"
	"stagecraft.ai/internal/sim/scenario"
)

// Boot populates an empty world from a scenario definition and registers
// every agent. It does not talk to any chat worker; that happens at kickoff.
func (g *Game) Boot(sc scenario.Definition) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	if len(g.actorNames())+len(g.stageNames()) > 0 {
		return fmt.Errorf("world already booted")
	}

	for _, s := range sc.Stages {
		e := g.newEntry()
		donburi.Add(e, components.StageComponent, &components.Stage{Name: s.Name})
		donburi.Add(e, components.SystemPromptComponent, &components.SystemPrompt{Content: s.SystemPrompt})
		donburi.Add(e, components.KickOffComponent, &components.KickOff{Content: s.KickOff})
		donburi.Add(e, components.StageEnvironmentComponent, &components.StageEnvironment{Narrative: s.Environment})
		if len(s.Next) > 0 {
			donburi.Add(e, components.StageGraphComponent, &components.StageGraph{Next: append([]string(nil), s.Next...)})
		}
		if s.Dungeon {
			e.AddComponent(components.DungeonStageTag)
		}
		if err := g.agents.Register(s.Name); err != nil {
			return err
		}
	}

	for _, a := range sc.Actors {
		e := g.newEntry()
		donburi.Add(e, components.ActorComponent, &components.Actor{Name: a.Name, CurrentStage: a.Stage})
		donburi.Add(e, components.SystemPromptComponent, &components.SystemPrompt{Content: a.SystemPrompt})
		donburi.Add(e, components.KickOffComponent, &components.KickOff{Content: a.KickOff})
		donburi.Add(e, components.BaseFormComponent, &components.BaseForm{Description: a.BaseForm})
		attrs := components.Attributes{MaxHP: a.MaxHP, HP: a.MaxHP, Damage: a.Damage, Defense: a.Defense}
		if attrs.MaxHP == 0 {
			attrs.MaxHP = g.tun.Combat.BaseHP
			attrs.HP = g.tun.Combat.BaseHP
			attrs.Damage = g.tun.Combat.BaseDamage
			attrs.Defense = g.tun.Combat.BaseDefense
		}
		donburi.Add(e, components.AttributesComponent, &attrs)
		if len(a.Items) > 0 {
			items := make([]components.Item, 0, len(a.Items))
			for _, it := range a.Items {
				items = append(items, components.Item{
					Name: it.Name, Type: it.Type, Count: it.Count, Description: it.Description,
				})
			}
			donburi.Add(e, components.InventoryComponent, &components.Inventory{Items: items})
		}
		se, ok := g.stageEntry(a.Stage)
		if !ok {
			return fmt.Errorf("actor %q starts in unknown stage %q", a.Name, a.Stage)
		}
		stage := components.StageComponent.Get(se)
		stage.Actors = append(stage.Actors, a.Name)
		if err := g.agents.Register(a.Name); err != nil {
			return err
		}
	}

	for _, w := range sc.WorldSystems {
		e := g.newEntry()
		donburi.Add(e, components.WorldSystemComponent, &components.WorldSystem{Name: w.Name})
		donburi.Add(e, components.SystemPromptComponent, &components.SystemPrompt{Content: w.SystemPrompt})
		donburi.Add(e, components.KickOffComponent, &components.KickOff{Content: w.KickOff})
		if err := g.agents.Register(w.Name); err != nil {
			return err
		}
	}

	g.dungeon.Levels = append([]string(nil), sc.Dungeon...)
	return nil
}

// newEntry creates an empty entity; components are attached with
// donburi.Add.
func (g *Game) newEntry() *donburi.Entry {
	return g.world.Entry(g.world.Create())
}

// Start binds the human player to an actor and runs the kickoff processor on
// every entity that still carries its first-turn flag. On a freshly booted
// world that is everyone; on a restored world it is a no-op set.
func (g *Game) Start(ctx context.Context, playerActor string) error {
	if g.Started() {
		return fmt.Errorf("game already started")
	}
	e, ok := g.actorEntry(playerActor)
	if !ok {
		return fmt.Errorf("no such actor %q", playerActor)
	}
	if !e.HasComponent(components.PlayerTag) {
		e.AddComponent(components.PlayerTag)
	}
	g.player = playerActor

	if err := g.runKickoff(ctx); err != nil {
		return err
	}
	g.pushStageState()
	return nil
}
