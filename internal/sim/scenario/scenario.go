// Package scenario describes the initial content of a new world: stages,
// actors, world systems, and the dungeon run. Definitions load from YAML or
// come from the built-in demo.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Definition struct {
	Stages       []Stage       `yaml:"stages"`
	Actors       []Actor       `yaml:"actors"`
	WorldSystems []WorldSystem `yaml:"world_systems"`
	// Dungeon lists stage names, in level order.
	Dungeon []string `yaml:"dungeon"`
}

type Stage struct {
	Name         string   `yaml:"name"`
	SystemPrompt string   `yaml:"system_prompt"`
	KickOff      string   `yaml:"kick_off"`
	Environment  string   `yaml:"environment"`
	Next         []string `yaml:"next"`
	Dungeon      bool     `yaml:"dungeon"`
}

type Actor struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
	KickOff      string `yaml:"kick_off"`
	BaseForm     string `yaml:"base_form"`
	Stage        string `yaml:"stage"`
	MaxHP        int    `yaml:"max_hp"`
	Damage       int    `yaml:"damage"`
	Defense      int    `yaml:"defense"`
	Items        []Item `yaml:"items"`
}

type Item struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Count       int    `yaml:"count"`
	Description string `yaml:"description"`
}

type WorldSystem struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
	KickOff      string `yaml:"kick_off"`
}

func Load(path string) (Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("scenario: %w", err)
	}
	var d Definition
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return Definition{}, fmt.Errorf("scenario: %w", err)
	}
	if err := d.Validate(); err != nil {
		return Definition{}, err
	}
	return d, nil
}

// Validate checks name uniqueness and referential integrity so a broken
// definition fails at load time, not mid-turn.
func (d Definition) Validate() error {
	names := map[string]bool{}
	stages := map[string]bool{}
	claim := func(n string) error {
		if n == "" {
			return fmt.Errorf("scenario: empty entity name")
		}
		if names[n] {
			return fmt.Errorf("scenario: duplicate name %q", n)
		}
		names[n] = true
		return nil
	}
	for _, s := range d.Stages {
		if err := claim(s.Name); err != nil {
			return err
		}
		stages[s.Name] = true
	}
	for _, s := range d.Stages {
		for _, next := range s.Next {
			if !stages[next] {
				return fmt.Errorf("scenario: stage %q links to unknown stage %q", s.Name, next)
			}
		}
	}
	for _, a := range d.Actors {
		if err := claim(a.Name); err != nil {
			return err
		}
		if !stages[a.Stage] {
			return fmt.Errorf("scenario: actor %q starts in unknown stage %q", a.Name, a.Stage)
		}
	}
	for _, w := range d.WorldSystems {
		if err := claim(w.Name); err != nil {
			return err
		}
	}
	for _, level := range d.Dungeon {
		if !stages[level] {
			return fmt.Errorf("scenario: dungeon level %q is not a stage", level)
		}
	}
	return nil
}

// Default is the built-in demo world: a camp with two heroes, and a one-level
// goblin dungeon.
func Default() Definition {
	return Definition{
		Stages: []Stage{
			{
				Name:         "Camp",
				SystemPrompt: "You are the Camp, a quiet clearing with a fire pit where adventurers rest between expeditions. You narrate the stage and keep its description current.",
				KickOff:      "Night has just fallen. The fire has been lit and the party gathers around it.",
				Environment:  "A clearing ringed by old pines. A campfire crackles at its center.",
				Next:         []string{},
			},
			{
				Name:         "Goblin Cave",
				SystemPrompt: "You are the Goblin Cave, a cramped torch-lit cavern. You narrate the stage, keep its description current, and arbitrate combat fought inside you fairly and vividly.",
				KickOff:      "The cave waits in silence. Something skitters in the dark.",
				Environment:  "A low cavern, walls slick with damp. Guttering torches throw long shadows.",
				Dungeon:      true,
			},
		},
		Actors: []Actor{
			{
				Name:         "Warrior",
				SystemPrompt: "You are the Warrior, a blunt and loyal swordfighter.",
				KickOff:      "You sit by the fire, sharpening your blade.",
				BaseForm:     "A broad-shouldered fighter in dented plate.",
				Stage:        "Camp",
				MaxHP:        60,
				Damage:       10,
				Defense:      6,
				Items: []Item{
					{Name: "Healing Draught", Type: "consumable", Count: 2, Description: "Restores a little vigor."},
				},
			},
			{
				Name:         "Mage",
				SystemPrompt: "You are the Mage, a dry-witted scholar of destructive magic.",
				KickOff:      "You leaf through your grimoire by firelight.",
				BaseForm:     "A slight figure in a travel-stained robe.",
				Stage:        "Camp",
				MaxHP:        40,
				Damage:       12,
				Defense:      3,
			},
			{
				Name:         "Goblin",
				SystemPrompt: "You are the Goblin, a vicious little creature defending its cave.",
				KickOff:      "You crouch behind a rock, clutching a rusty knife.",
				BaseForm:     "A wiry green goblin with yellow eyes.",
				Stage:        "Goblin Cave",
				MaxHP:        30,
				Damage:       7,
				Defense:      2,
			},
		},
		Dungeon: []string{"Goblin Cave"},
	}
}
