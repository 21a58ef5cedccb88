package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	SchemaVersion string `yaml:"schema_version"`

	// Chat worker pool.
	ChatEndpoints      []string `yaml:"chat_endpoints"`
	ChatTimeoutMs      int      `yaml:"chat_timeout_ms"`
	ChatMaxRetries     int      `yaml:"chat_max_retries"`
	ChatBackoffBaseMs  int      `yaml:"chat_backoff_base_ms"`
	ArbitrationRerolls int      `yaml:"arbitration_rerolls"`

	SnapshotEveryTurns int `yaml:"snapshot_every_turns"`
	SessionQueueCap    int `yaml:"session_queue_cap"`

	Combat Combat `yaml:"combat"`
}

type Combat struct {
	HandSize    int `yaml:"hand_size"`
	BaseHP      int `yaml:"base_hp"`
	BaseDamage  int `yaml:"base_damage"`
	BaseDefense int `yaml:"base_defense"`
	MaxRounds   int `yaml:"max_rounds"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	return t, nil
}

func Defaults() Tuning {
	var t Tuning
	t.applyDefaults()
	return t
}

func (t *Tuning) applyDefaults() {
	if t.SchemaVersion == "" {
		t.SchemaVersion = "0.0.1"
	}
	if t.ChatTimeoutMs <= 0 {
		t.ChatTimeoutMs = 30000
	}
	if t.ChatMaxRetries <= 0 {
		t.ChatMaxRetries = 2
	}
	if t.ChatBackoffBaseMs <= 0 {
		t.ChatBackoffBaseMs = 250
	}
	if t.ArbitrationRerolls <= 0 {
		t.ArbitrationRerolls = 3
	}
	if t.SnapshotEveryTurns <= 0 {
		t.SnapshotEveryTurns = 1
	}
	if t.SessionQueueCap <= 0 {
		t.SessionQueueCap = 4096
	}
	if t.Combat.HandSize <= 0 {
		t.Combat.HandSize = 3
	}
	if t.Combat.BaseHP <= 0 {
		t.Combat.BaseHP = 50
	}
	if t.Combat.BaseDamage <= 0 {
		t.Combat.BaseDamage = 8
	}
	if t.Combat.BaseDefense <= 0 {
		t.Combat.BaseDefense = 4
	}
	if t.Combat.MaxRounds <= 0 {
		t.Combat.MaxRounds = 20
	}
}
