// Package components defines the typed component records attached to world
// entities. Presence or absence of a component is what the pipeline's queries
// match on.
package components

import (
	"github.com/yohamta/donburi"
)

var (
	ActorComponent            = donburi.NewComponentType[Actor]()
	StageComponent            = donburi.NewComponentType[Stage]()
	StageGraphComponent       = donburi.NewComponentType[StageGraph]()
	StageEnvironmentComponent = donburi.NewComponentType[StageEnvironment]()
	WorldSystemComponent      = donburi.NewComponentType[WorldSystem]()
	SystemPromptComponent     = donburi.NewComponentType[SystemPrompt]()
	KickOffComponent          = donburi.NewComponentType[KickOff]()
	BaseFormComponent         = donburi.NewComponentType[BaseForm]()
	AppearanceComponent       = donburi.NewComponentType[Appearance]()
	InventoryComponent        = donburi.NewComponentType[Inventory]()
	AttributesComponent       = donburi.NewComponentType[Attributes]()
	RoundEventsComponent      = donburi.NewComponentType[RoundEvents]()

	PlayerTag            = donburi.NewTag().SetName("Player")
	KickOffDoneTag       = donburi.NewTag().SetName("KickOffDone")
	DungeonStageTag      = donburi.NewTag().SetName("DungeonStage")
	DeathTag             = donburi.NewTag().SetName("Death")
	CombatParticipantTag = donburi.NewTag().SetName("CombatParticipant")
)

// Actor is the principal component of a character entity. CurrentStage is a
// name reference resolved through the world, never a hard pointer, so the
// stage/actor containment stays a derived invariant.
type Actor struct {
	Name         string `json:"name"`
	CurrentStage string `json:"current_stage"`
}

// Stage is the principal component of a location entity. Actors holds the
// occupant names in entry order; it mirrors each occupant's CurrentStage.
type Stage struct {
	Name   string   `json:"name"`
	Actors []string `json:"actors"`
}

// StageGraph lists the stage names reachable from this stage in one
// transition.
type StageGraph struct {
	Next []string `json:"next"`
}

// StageEnvironment is the stage's free-text description, visible to every
// occupant and rewritten by the stage's own agent.
type StageEnvironment struct {
	Narrative string `json:"narrative"`
}

// WorldSystem marks a rule-keeping agent entity that exists outside any
// stage.
type WorldSystem struct {
	Name string `json:"name"`
}

// SystemPrompt is the immutable persona prompt handed to the agent once at
// kickoff.
type SystemPrompt struct {
	Content string `json:"content"`
}

// KickOff holds the first-turn message for an entity that has not yet been
// introduced to its agent. Cleared (replaced by KickOffDoneTag) after the
// kickoff processor runs.
type KickOff struct {
	Content string `json:"content"`
}

// BaseForm is an actor's innate description before equipment.
type BaseForm struct {
	Description string `json:"description"`
}

// Appearance is the composed outward description, derived from the base form
// and worn items.
type Appearance struct {
	Description string `json:"description"`
}

const ItemTypeUnique = "unique"

type Item struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Count       int    `json:"count"`
	Description string `json:"description"`
}

// Inventory is an ordered item list. Items whose count reaches zero are
// pruned at end of turn.
type Inventory struct {
	Items []Item `json:"items"`
}

// Attributes are the combat stats. HP only changes through combat
// arbitration.
type Attributes struct {
	MaxHP   int `json:"max_hp"`
	HP      int `json:"hp"`
	Damage  int `json:"damage"`
	Defense int `json:"defense"`
}

// RoundEvents accumulates the event lines an actor witnessed during the
// current combat round, for the arbitration prompt.
type RoundEvents struct {
	Events []string `json:"events"`
}
