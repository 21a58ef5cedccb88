package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("built-in scenario invalid: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		def  Definition
		want string
	}{
		{
			name: "duplicate name across kinds",
			def: Definition{
				Stages: []Stage{{Name: "Camp"}},
				Actors: []Actor{{Name: "Camp", Stage: "Camp"}},
			},
			want: "duplicate name",
		},
		{
			name: "dangling graph link",
			def: Definition{
				Stages: []Stage{{Name: "Camp", Next: []string{"Void"}}},
			},
			want: "unknown stage",
		},
		{
			name: "actor in unknown stage",
			def: Definition{
				Stages: []Stage{{Name: "Camp"}},
				Actors: []Actor{{Name: "Warrior", Stage: "Void"}},
			},
			want: "unknown stage",
		},
		{
			name: "dungeon level that is not a stage",
			def: Definition{
				Stages:  []Stage{{Name: "Camp"}},
				Dungeon: []string{"Void"},
			},
			want: "not a stage",
		},
		{
			name: "empty name",
			def:  Definition{Stages: []Stage{{Name: ""}}},
			want: "empty entity name",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	doc := `
stages:
  - name: Camp
    next: [Cave]
  - name: Cave
    dungeon: true
actors:
  - name: Warrior
    stage: Camp
    max_hp: 60
    items:
      - name: Rope
        type: unique
        count: 1
dungeon: [Cave]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(d.Stages) != 2 || !d.Stages[1].Dungeon {
		t.Fatalf("stages = %+v", d.Stages)
	}
	if d.Actors[0].MaxHP != 60 || d.Actors[0].Items[0].Name != "Rope" {
		t.Fatalf("actor = %+v", d.Actors[0])
	}

	// A definition that fails validation must fail the load.
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("dungeon: [Nowhere]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatal("expected invalid scenario to fail loading")
	}
}
