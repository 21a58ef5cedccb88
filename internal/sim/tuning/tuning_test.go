package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.SchemaVersion != "0.0.1" {
		t.Fatalf("schema_version = %q", d.SchemaVersion)
	}
	if d.ChatTimeoutMs != 30000 || d.ChatMaxRetries != 2 || d.ChatBackoffBaseMs != 250 {
		t.Fatalf("chat defaults = %+v", d)
	}
	if d.ArbitrationRerolls != 3 || d.SnapshotEveryTurns != 1 {
		t.Fatalf("pipeline defaults = %+v", d)
	}
	if d.Combat.HandSize != 3 || d.Combat.MaxRounds != 20 {
		t.Fatalf("combat defaults = %+v", d.Combat)
	}
	if len(d.ChatEndpoints) != 0 {
		t.Fatalf("defaults must not invent endpoints: %v", d.ChatEndpoints)
	}
}

func TestLoadAppliesDefaultsToOmittedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	doc := `
chat_endpoints:
  - http://127.0.0.1:9001
chat_timeout_ms: 5000
combat:
  hand_size: 5
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ChatTimeoutMs != 5000 {
		t.Fatalf("explicit value overwritten: %d", got.ChatTimeoutMs)
	}
	if got.Combat.HandSize != 5 || got.Combat.BaseHP != 50 {
		t.Fatalf("combat = %+v", got.Combat)
	}
	if got.ArbitrationRerolls != 3 {
		t.Fatalf("omitted field not defaulted: %d", got.ArbitrationRerolls)
	}
	if len(got.ChatEndpoints) != 1 {
		t.Fatalf("endpoints = %v", got.ChatEndpoints)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
