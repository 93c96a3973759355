package model

import (
	"github.com/vmihailenco/msgpack/v5"
)

// =============================================================================
// PUBLISHED CAPTURE — wire format
// =============================================================================
//
// A Frame is the value copy of one published buffer. It is what leaves the
// engine: renderers, the CSV capture log and the parquet recorder all consume
// Frames, never the engine's own buffers.
//
// MsgPack wire format (map keys are the msgpack tags below):
//   id, seq, time, trigger_pos, memory, sample_rate, trace_size, traces
//   traces[n]: source, projection, count, overlay, trigger_level, points
//   points[k]: FixArray(2) [x, y]
//
// x is the write cursor minus the display shift, y the clamped value in
// [-1, +1]. Only the first `count` points of a trace are meaningful.
// =============================================================================

// Point is one displayable trace sample.
type Point struct {
	_msgpack struct{} `msgpack:",as_array"`

	X float32
	Y float32
}

// TraceBuffer is the output of one trace for one capture.
type TraceBuffer struct {
	Source       int     `msgpack:"source"`
	Projection   string  `msgpack:"projection"`
	Count        int     `msgpack:"count"`
	Overlay      string  `msgpack:"overlay,omitempty"`
	TriggerLevel float32 `msgpack:"trigger_level"` // 2.0 when off scale
	Points       []Point `msgpack:"points"`
}

// Clone returns a deep copy of the buffer.
func (t *TraceBuffer) Clone() TraceBuffer {
	c := *t
	c.Points = make([]Point, len(t.Points))
	copy(c.Points, t.Points)
	return c
}

// Frame is one published capture.
type Frame struct {
	ID         string        `msgpack:"id"`
	Seq        uint64        `msgpack:"seq"`
	Time       int64         `msgpack:"time"` // unix ms
	TriggerPos int64         `msgpack:"trigger_pos"`
	Memory     int           `msgpack:"memory"` // 0 = live capture
	SampleRate int           `msgpack:"sample_rate"`
	TraceSize  int           `msgpack:"trace_size"`
	Traces     []TraceBuffer `msgpack:"traces"`
}

// Live reports whether the frame comes from a live capture rather than a
// memory replay.
func (f *Frame) Live() bool {
	return f.Memory == 0
}

// EncodeMsgPack serializes the frame for the wire.
func (f *Frame) EncodeMsgPack() ([]byte, error) {
	return msgpack.Marshal(f)
}

// DecodeFrame is the inverse of EncodeMsgPack.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	err := msgpack.Unmarshal(b, &f)
	return f, err
}
