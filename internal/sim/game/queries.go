package game

import (
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"

	"stagecraft.ai/internal/sim/components"
)

var (
	actorQuery       = donburi.NewQuery(filter.Contains(components.ActorComponent))
	stageQuery       = donburi.NewQuery(filter.Contains(components.StageComponent))
	worldSystemQuery = donburi.NewQuery(filter.Contains(components.WorldSystemComponent))
	kickOffQuery     = donburi.NewQuery(filter.Contains(components.KickOffComponent))
	inventoryQuery   = donburi.NewQuery(filter.Contains(components.InventoryComponent))
	combatQuery      = donburi.NewQuery(filter.And(
		filter.Contains(components.CombatParticipantTag),
		filter.Not(filter.Contains(components.DeathTag)),
	))

	// nameQueries covers every principal entity kind for name lookup.
	nameQueries = []*donburi.Query{actorQuery, stageQuery, worldSystemQuery}
)
