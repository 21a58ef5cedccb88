// Package game owns the authoritative world of one running game: the entity
// store, the per-agent conversation logs, the session feed, and the turn
// pipeline that ties them together. All state is single-threaded; the only
// concurrency is inside the chat pool gather.
package game

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/yohamta/donburi"

	"stagecraft.ai/internal/chatpool"
	"stagecraft.ai/internal/sim/agentctx"
	"stagecraft.ai/internal/sim/components"
	"stagecraft.ai/internal/sim/session"
	"stagecraft.ai/internal/sim/tuning"
)

// ChatClient is the pipeline's view of the worker pool. Tests substitute a
// stub returning scripted replies.
type ChatClient interface {
	Gather(ctx context.Context, handlers []*chatpool.Handler)
}

// Game is a single (user, game) world. Methods must not be called
// concurrently; the transport layer serializes access per room.
type Game struct {
	User string
	Name string

	world   donburi.World
	agents  *agentctx.Store
	queue   *session.Queue
	chat    ChatClient
	tun     tuning.Tuning
	log     *log.Logger
	dungeon *Dungeon

	player string // player-controlled actor name, "" before Start
	turn   uint64
	combat *combatRound // nil outside an active combat round

	persist PersistFunc
}

func New(user, name string, chat ChatClient, tun tuning.Tuning, logger *log.Logger) *Game {
	if logger == nil {
		logger = log.Default()
	}
	g := &Game{
		User:    user,
		Name:    name,
		world:   donburi.NewWorld(),
		agents:  agentctx.NewStore(),
		queue:   session.NewQueue(),
		chat:    chat,
		tun:     tun,
		log:     logger,
		dungeon: &Dungeon{},
	}
	g.subscribeEvents()
	return g
}

func (g *Game) World() donburi.World     { return g.world }
func (g *Game) Agents() *agentctx.Store  { return g.agents }
func (g *Game) Queue() *session.Queue    { return g.queue }
func (g *Game) Dungeon() *Dungeon        { return g.dungeon }
func (g *Game) PlayerActor() string      { return g.player }
func (g *Game) Turn() uint64             { return g.turn }
func (g *Game) Started() bool            { return g.player != "" }
func (g *Game) CombatActive() bool       { return g.combat != nil }

// entryByName looks an entity up by its stable name. Names are unique across
// actors, stages, and world systems.
func (g *Game) entryByName(name string) (*donburi.Entry, bool) {
	var found *donburi.Entry
	for _, q := range nameQueries {
		q.Each(g.world, func(e *donburi.Entry) {
			if found == nil && components.EntityName(e) == name {
				found = e
			}
		})
		if found != nil {
			return found, true
		}
	}
	return nil, false
}

func (g *Game) actorEntry(name string) (*donburi.Entry, bool) {
	e, ok := g.entryByName(name)
	if !ok || !e.HasComponent(components.ActorComponent) {
		return nil, false
	}
	return e, true
}

// actorStage returns the stage an actor currently stands in.
func (g *Game) actorStage(name string) (string, bool) {
	e, ok := g.actorEntry(name)
	if !ok {
		return "", false
	}
	return components.ActorComponent.Get(e).CurrentStage, true
}

func (g *Game) stageEntry(name string) (*donburi.Entry, bool) {
	e, ok := g.entryByName(name)
	if !ok || !e.HasComponent(components.StageComponent) {
		return nil, false
	}
	return e, true
}

// occupants returns the stage's actor names in entry order. The stage's own
// list is authoritative; it mirrors each occupant's CurrentStage.
func (g *Game) occupants(stage string) []string {
	e, ok := g.stageEntry(stage)
	if !ok {
		return nil
	}
	s := components.StageComponent.Get(e)
	return append([]string(nil), s.Actors...)
}

// livingOccupants filters out dead actors.
func (g *Game) livingOccupants(stage string) []string {
	var out []string
	for _, name := range g.occupants(stage) {
		if e, ok := g.actorEntry(name); ok && !e.HasComponent(components.DeathTag) {
			out = append(out, name)
		}
	}
	return out
}

// moveActor is the only mutator of the stage/actor containment. It keeps the
// bijection intact: the actor's CurrentStage and both stages' occupant lists
// change together or not at all.
func (g *Game) moveActor(actor, to string) error {
	ae, ok := g.actorEntry(actor)
	if !ok {
		return fmt.Errorf("no such actor %q", actor)
	}
	te, ok := g.stageEntry(to)
	if !ok {
		return fmt.Errorf("no such stage %q", to)
	}
	ac := components.ActorComponent.Get(ae)
	if ac.CurrentStage == to {
		return fmt.Errorf("%s is already in %s", actor, to)
	}
	if fe, ok := g.stageEntry(ac.CurrentStage); ok {
		fs := components.StageComponent.Get(fe)
		fs.Actors = removeName(fs.Actors, actor)
	}
	ts := components.StageComponent.Get(te)
	ts.Actors = append(ts.Actors, actor)
	ac.CurrentStage = to
	return nil
}

// stageNames returns every stage name, sorted for deterministic iteration.
func (g *Game) stageNames() []string {
	var names []string
	stageQuery.Each(g.world, func(e *donburi.Entry) {
		names = append(names, components.StageComponent.Get(e).Name)
	})
	sort.Strings(names)
	return names
}

// actorNames returns every actor name, sorted.
func (g *Game) actorNames() []string {
	var names []string
	actorQuery.Each(g.world, func(e *donburi.Entry) {
		names = append(names, components.ActorComponent.Get(e).Name)
	})
	sort.Strings(names)
	return names
}

// StagesState reports the stage -> occupants mapping for the read endpoints.
func (g *Game) StagesState() map[string][]string {
	out := map[string][]string{}
	for _, name := range g.stageNames() {
		out[name] = g.occupants(name)
	}
	return out
}

func removeName(list []string, name string) []string {
	out := list[:0]
	for _, n := range list {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
