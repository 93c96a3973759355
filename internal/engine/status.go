package engine

// Status is a point-in-time view of the engine for monitoring. It is
// replaced, never mutated, once published.
type Status struct {
	State        string `json:"state"`
	TriggerIndex int    `json:"trigger_index"`
	Pending      bool   `json:"pending"`
	WaitingReset bool   `json:"waiting_reset"`
	OneShot      bool   `json:"one_shot"`
	FreeRun      bool   `json:"free_run"`
	Memory       int    `json:"memory"`
	Snapshots    int    `json:"snapshots"`
	SearchPos    int64  `json:"search_pos"`
	Captures     uint64 `json:"captures"`
	Seq          uint64 `json:"seq"`
	Traces       int    `json:"traces"`
	Triggers     int    `json:"triggers"`
	TraceSize    int    `json:"trace_size"`
	Front        string `json:"front"`
	SampleRate   int    `json:"sample_rate"`
}

func (e *Engine) publishStatus() {
	s := &Status{
		State:        e.chain.State().String(),
		TriggerIndex: e.chain.Index(),
		Pending:      e.pending,
		WaitingReset: e.waitReset,
		OneShot:      e.oneShot,
		FreeRun:      e.settings.FreeRun,
		Memory:       e.memory,
		Snapshots:    e.snapshots(),
		SearchPos:    e.searchPos,
		Captures:     e.captures,
		Seq:          e.seq,
		Traces:       e.traces.Len(),
		Triggers:     e.chain.Len(),
		TraceSize:    e.settings.TraceSize,
		SampleRate:   e.sampleRate,
	}
	if e.out != nil {
		s.Front = e.out.Front().String()
	}
	e.status.Store(s)
}

// Status returns the last published status. Safe from any goroutine.
func (e *Engine) Status() Status {
	if s := e.status.Load(); s != nil {
		return *s
	}
	return Status{}
}
