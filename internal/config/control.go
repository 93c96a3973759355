package config

import (
	"encoding/json"
	"fmt"

	"iq-scope/internal/engine"
	"iq-scope/internal/trace"
	"iq-scope/internal/trigger"
)

// Control is a JSON control message from a renderer client, for example
//
//	{"op":"change_trigger","index":0,"trigger":{"projection":"mag_db","level":-20}}
type Control struct {
	Op      string         `json:"op"`
	Index   int            `json:"index"`
	Up      bool           `json:"up"`
	On      bool           `json:"on"`
	Engine   *EngineConfig   `json:"engine,omitempty"`
	Trace    *TraceConfig    `json:"trace,omitempty"`
	Trigger  *TriggerConfig  `json:"trigger,omitempty"`
	Traces   []TraceConfig   `json:"traces,omitempty"`   // set_traces
	Triggers []TriggerConfig `json:"triggers,omitempty"` // set_triggers
}

// DecodeControl parses a control message into the engine command it names.
func DecodeControl(data []byte) (engine.Command, error) {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse control message: %w", err)
	}
	return c.Command()
}

// Command converts the message.
func (c *Control) Command() (engine.Command, error) {
	switch c.Op {
	case "configure":
		if c.Engine == nil {
			return nil, fmt.Errorf("%s: missing engine", c.Op)
		}
		return engine.Configure{Settings: c.Engine.Settings()}, nil
	case "add_trace", "change_trace":
		if c.Trace == nil {
			return nil, fmt.Errorf("%s: missing trace", c.Op)
		}
		s, err := c.Trace.Spec()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Op, err)
		}
		if c.Op == "add_trace" {
			return engine.AddTrace{Spec: s}, nil
		}
		return engine.ChangeTrace{Index: c.Index, Spec: s}, nil
	case "set_traces":
		specs := make([]trace.Spec, len(c.Traces))
		for i, t := range c.Traces {
			s, err := t.Spec()
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", c.Op, i, err)
			}
			specs[i] = s
		}
		return engine.SetTraces{Specs: specs}, nil
	case "remove_trace":
		return engine.RemoveTrace{Index: c.Index}, nil
	case "move_trace":
		return engine.MoveTrace{Index: c.Index, Up: c.Up}, nil
	case "focus_trace":
		return engine.FocusTrace{Index: c.Index}, nil
	case "add_trigger", "change_trigger":
		if c.Trigger == nil {
			return nil, fmt.Errorf("%s: missing trigger", c.Op)
		}
		s, err := c.Trigger.Spec()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Op, err)
		}
		if c.Op == "add_trigger" {
			return engine.AddTrigger{Spec: s}, nil
		}
		return engine.ChangeTrigger{Index: c.Index, Spec: s}, nil
	case "set_triggers":
		specs := make([]trigger.Spec, len(c.Triggers))
		for i, t := range c.Triggers {
			s, err := t.Spec()
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", c.Op, i, err)
			}
			specs[i] = s
		}
		return engine.SetTriggers{Specs: specs}, nil
	case "remove_trigger":
		return engine.RemoveTrigger{Index: c.Index}, nil
	case "move_trigger":
		return engine.MoveTrigger{Index: c.Index, Up: c.Up}, nil
	case "focus_trigger":
		return engine.FocusTrigger{Index: c.Index}, nil
	case "one_shot":
		return engine.SetOneShot{On: c.On}, nil
	case "memory":
		return engine.SetMemoryIndex{Index: c.Index}, nil
	case "rearm":
		return engine.Rearm{}, nil
	}
	return nil, fmt.Errorf("unknown op %q", c.Op)
}
