package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"iq-scope/internal/engine"
	"iq-scope/internal/projector"
	"iq-scope/internal/trace"
	"iq-scope/internal/trigger"
)

// Config represents the complete scope configuration
type Config struct {
	Engine   EngineConfig    `yaml:"engine"`
	Traces   []TraceConfig   `yaml:"traces"`
	Triggers []TriggerConfig `yaml:"triggers"`
	Producer ProducerConfig  `yaml:"producer"`
	Server   ServerConfig    `yaml:"server"`
	Log      LogConfig       `yaml:"log"`
	Recorder RecorderConfig  `yaml:"recorder"`
}

// EngineConfig contains acquisition settings
type EngineConfig struct {
	Sources            int  `yaml:"sources" json:"sources"`
	TraceSize          int  `yaml:"trace_size" json:"trace_size"`
	TimeBase           int  `yaml:"time_base" json:"time_base"`
	TimeOffsetPerMille int  `yaml:"time_offset_per_mille" json:"time_offset_per_mille"` // 0..1000 of the trace
	PreTrigger         int  `yaml:"pre_trigger" json:"pre_trigger"`                     // samples before the trigger
	FreeRun            bool `yaml:"free_run" json:"free_run"`
	OneShot            bool `yaml:"one_shot" json:"one_shot"`
	MemoryDepth        int  `yaml:"memory_depth" json:"memory_depth"` // snapshots kept per source
}

// TraceConfig defines one displayed trace
type TraceConfig struct {
	Source     int     `yaml:"source" json:"source"`
	Projection string  `yaml:"projection" json:"projection"` // real, imag, mag_lin, mag_sq, mag_db, phase, dphase
	Amp        float32 `yaml:"amp" json:"amp"`               // 0 or omitted means 1
	Offset     float32 `yaml:"offset" json:"offset"`
	Delay      int     `yaml:"delay" json:"delay"`
}

// TriggerConfig defines one link of the trigger chain
type TriggerConfig struct {
	Source     int     `yaml:"source" json:"source"`
	Projection string  `yaml:"projection" json:"projection"`
	Level      float32 `yaml:"level" json:"level"`
	Edge       string  `yaml:"edge" json:"edge"` // rising (default), falling, both
	Delay      int     `yaml:"delay" json:"delay"`
	Repeat     int     `yaml:"repeat" json:"repeat"`
}

// ProducerConfig selects where samples come from
type ProducerConfig struct {
	Mode        string  `yaml:"mode"` // synthetic, websocket
	URL         string  `yaml:"url"`
	SampleRate  float64 `yaml:"sample_rate"`
	BatchSize   int     `yaml:"batch_size"`
	Queue       int     `yaml:"queue"` // batches buffered between producer and worker
	ToneHz      float64 `yaml:"tone_hz"`
	Amplitude   float64 `yaml:"amplitude"`
	Noise       float64 `yaml:"noise"`
	BurstPeriod int     `yaml:"burst_period"`
	BurstLength int     `yaml:"burst_length"`
	BurstGain   float64 `yaml:"burst_gain"`
}

// ServerConfig contains renderer server settings
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	HistoryFrames int    `yaml:"history_frames"` // frames streamed to new clients
}

// LogConfig contains capture log settings
type LogConfig struct {
	Dir string `yaml:"dir"`
}

// RecorderConfig contains parquet export settings
type RecorderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Queue   int    `yaml:"queue"`
}

const (
	ModeSynthetic = "synthetic"
	ModeWebsocket = "websocket"
)

// Default returns a runnable configuration: one synthetic source with
// periodic bursts, one magnitude trace and a trigger on the bursts.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Sources:            1,
			TraceSize:          1000,
			TimeBase:           1,
			TimeOffsetPerMille: 100,
			PreTrigger:         100,
			MemoryDepth:        engine.DefaultMemoryDepth,
		},
		Traces: []TraceConfig{
			{Projection: "mag_lin", Amp: 1},
			{Projection: "mag_db", Amp: 0.01, Offset: -50},
		},
		Triggers: []TriggerConfig{
			{Projection: "mag_lin", Level: 0.5, Edge: "rising"},
		},
		Producer: ProducerConfig{
			Mode:        ModeSynthetic,
			SampleRate:  48000,
			BatchSize:   480,
			Queue:       256,
			ToneHz:      1000,
			Amplitude:   0.2,
			Noise:       0.01,
			BurstPeriod: 12000,
			BurstLength: 600,
			BurstGain:   4,
		},
		Server: ServerConfig{
			Addr:          ":8080",
			HistoryFrames: 64,
		},
		Log: LogConfig{Dir: "logs"},
		Recorder: RecorderConfig{
			Dir:   "captures",
			Queue: 64,
		},
	}
}

// Load reads and parses a YAML configuration file on top of Default
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration
func Validate(cfg *Config) error {
	e := cfg.Engine
	if e.Sources < 1 || e.Sources > engine.MaxSources {
		return fmt.Errorf("engine.sources must be in [1, %d], got %d", engine.MaxSources, e.Sources)
	}
	if e.TraceSize < 1 {
		return fmt.Errorf("engine.trace_size must be positive, got %d", e.TraceSize)
	}
	if e.TimeBase < 1 {
		return fmt.Errorf("engine.time_base must be positive, got %d", e.TimeBase)
	}
	if e.TimeOffsetPerMille < 0 || e.TimeOffsetPerMille > 1000 {
		return fmt.Errorf("engine.time_offset_per_mille must be in [0, 1000], got %d", e.TimeOffsetPerMille)
	}
	if e.PreTrigger < 0 || e.PreTrigger > e.TraceSize {
		return fmt.Errorf("engine.pre_trigger must be in [0, trace_size], got %d", e.PreTrigger)
	}
	if e.MemoryDepth < 0 {
		return fmt.Errorf("engine.memory_depth must not be negative, got %d", e.MemoryDepth)
	}

	if len(cfg.Traces) > engine.MaxTraces {
		return fmt.Errorf("at most %d traces, got %d", engine.MaxTraces, len(cfg.Traces))
	}
	for i, t := range cfg.Traces {
		if _, err := t.Spec(); err != nil {
			return fmt.Errorf("traces[%d]: %w", i, err)
		}
	}
	if len(cfg.Triggers) > engine.MaxTriggers {
		return fmt.Errorf("at most %d triggers, got %d", engine.MaxTriggers, len(cfg.Triggers))
	}
	for i, t := range cfg.Triggers {
		if _, err := t.Spec(); err != nil {
			return fmt.Errorf("triggers[%d]: %w", i, err)
		}
	}

	switch cfg.Producer.Mode {
	case ModeSynthetic:
	case ModeWebsocket:
		if cfg.Producer.URL == "" {
			return errors.New("producer.url is required in websocket mode")
		}
	default:
		return fmt.Errorf("unknown producer.mode %q", cfg.Producer.Mode)
	}
	if cfg.Producer.BatchSize < 1 {
		return fmt.Errorf("producer.batch_size must be positive, got %d", cfg.Producer.BatchSize)
	}
	if cfg.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	return nil
}

func checkSource(s int) error {
	if s < 0 || s >= engine.MaxSources {
		return fmt.Errorf("source %d out of range", s)
	}
	return nil
}

// Spec converts the trace configuration.
func (t TraceConfig) Spec() (trace.Spec, error) {
	if err := checkSource(t.Source); err != nil {
		return trace.Spec{}, err
	}
	k, err := projector.ParseKind(t.Projection)
	if err != nil {
		return trace.Spec{}, err
	}
	amp := t.Amp
	if amp == 0 {
		amp = 1
	}
	return trace.Spec{Source: t.Source, Projection: k, Amp: amp, Offset: t.Offset, Delay: t.Delay}, nil
}

// Spec converts the trigger configuration.
func (t TriggerConfig) Spec() (trigger.Spec, error) {
	if err := checkSource(t.Source); err != nil {
		return trigger.Spec{}, err
	}
	k, err := projector.ParseKind(t.Projection)
	if err != nil {
		return trigger.Spec{}, err
	}
	edge, err := trigger.ParseEdge(t.Edge)
	if err != nil {
		return trigger.Spec{}, err
	}
	return trigger.Spec{
		Source:     t.Source,
		Projection: k,
		Level:      t.Level,
		Edge:       edge,
		Delay:      t.Delay,
		Repeat:     t.Repeat,
	}, nil
}

// Settings converts the engine configuration.
func (e EngineConfig) Settings() engine.Settings {
	return engine.Settings{
		Sources:            e.Sources,
		TraceSize:          e.TraceSize,
		TimeBase:           e.TimeBase,
		TimeOffsetPerMille: e.TimeOffsetPerMille,
		PreTrigger:         e.PreTrigger,
		FreeRun:            e.FreeRun,
	}
}

// Commands returns the command list that brings an engine to this
// configuration. Every command replaces state rather than appending to it,
// so applying the list again yields the same engine state.
func (cfg *Config) Commands() ([]engine.Command, error) {
	traces := make([]trace.Spec, len(cfg.Traces))
	for i, t := range cfg.Traces {
		s, err := t.Spec()
		if err != nil {
			return nil, fmt.Errorf("traces[%d]: %w", i, err)
		}
		traces[i] = s
	}
	triggers := make([]trigger.Spec, len(cfg.Triggers))
	for i, t := range cfg.Triggers {
		s, err := t.Spec()
		if err != nil {
			return nil, fmt.Errorf("triggers[%d]: %w", i, err)
		}
		triggers[i] = s
	}
	return []engine.Command{
		engine.Configure{Settings: cfg.Engine.Settings()},
		engine.SetOneShot{On: cfg.Engine.OneShot},
		engine.SetSampleRate{Hz: int(cfg.Producer.SampleRate)},
		engine.SetTraces{Specs: traces},
		engine.SetTriggers{Specs: triggers},
	}, nil
}
