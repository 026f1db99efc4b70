package domain

import "encoding/json"

// RunConfig tunes a single simulation run. Zero values fall back to the
// documented defaults at run start. Disruptions are on unless explicitly
// disabled.
type RunConfig struct {
	TotalDays          int     `yaml:"total_days" toml:"total_days"`
	DisableDisruptions bool    `yaml:"disable_disruptions" toml:"disable_disruptions"`
	DisruptionChance   float64 `yaml:"env_event_probability" toml:"env_event_probability"`
	WorkingHoursPerDay float64 `yaml:"working_hours_per_day" toml:"working_hours_per_day"`
	Seed               int64   `yaml:"seed" toml:"seed"`
	StrictNarrative    bool    `yaml:"strict_narrative" toml:"strict_narrative"`
}

// runConfigWire is the serialized simulation_config shape. The environment
// agent flag is inverted on the wire and optional, so an absent field keeps
// disruptions enabled.
type runConfigWire struct {
	TotalDays           int     `json:"total_days,omitempty"`
	EnableEnvAgent      *bool   `json:"enable_env_agent,omitempty"`
	EnvEventProbability float64 `json:"env_event_probability,omitempty"`
	WorkingHoursPerDay  float64 `json:"working_hours_per_day,omitempty"`
	Seed                int64   `json:"seed,omitempty"`
	StrictNarrative     bool    `json:"strict_narrative,omitempty"`
}

func (c RunConfig) MarshalJSON() ([]byte, error) {
	enabled := !c.DisableDisruptions
	return json.Marshal(runConfigWire{
		TotalDays:           c.TotalDays,
		EnableEnvAgent:      &enabled,
		EnvEventProbability: c.DisruptionChance,
		WorkingHoursPerDay:  c.WorkingHoursPerDay,
		Seed:                c.Seed,
		StrictNarrative:     c.StrictNarrative,
	})
}

func (c *RunConfig) UnmarshalJSON(data []byte) error {
	var w runConfigWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.TotalDays = w.TotalDays
	c.DisableDisruptions = false
	if w.EnableEnvAgent != nil {
		c.DisableDisruptions = !*w.EnableEnvAgent
	}
	c.DisruptionChance = w.EnvEventProbability
	c.WorkingHoursPerDay = w.WorkingHoursPerDay
	c.Seed = w.Seed
	c.StrictNarrative = w.StrictNarrative
	return nil
}

// WithDefaults fills unset fields with the standard run parameters.
func (c RunConfig) WithDefaults() RunConfig {
	if c.TotalDays <= 0 {
		c.TotalDays = 30
	}
	if c.DisruptionChance <= 0 {
		c.DisruptionChance = 0.2
	}
	if c.DisruptionChance > 1 {
		c.DisruptionChance = 1
	}
	if c.WorkingHoursPerDay <= 0 {
		c.WorkingHoursPerDay = 8
	}
	return c
}
