package engine

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"iq-scope/internal/history"
	"iq-scope/internal/metrics"
	"iq-scope/internal/model"
	"iq-scope/internal/projector"
	"iq-scope/internal/trace"
	"iq-scope/internal/trigger"
)

// =============================================================================
// CAPTURE ENGINE — ingestion → trigger search → extraction → publish
// =============================================================================
//
// Positions are absolute per source (see history.Source). With T the trigger
// instant, d = max trace delay and p = pre-trigger samples, a capture reads
//
//   [T-p-d, T-p)  traceback     [T-p, T)  pre-trigger     [T, T+size)  main
//
// from every traced source, so a search position is only valid once
// T ≥ oldest + p + d, and extraction waits until written ≥ T + size on every
// traced source.
//
// After a publish the search resumes at T + size: captures never overlap.
//
// LOCKING:
//   cfgMu guards everything below it. Configuration methods Lock it; Feed
//   only TryLocks it and drops the batch on contention, so the sample path
//   never waits on a configuration change.
//   The output double buffer has its own per-slot locks (see trace package).
//   Status is published through an atomic pointer and read without cfgMu.
// =============================================================================

const (
	MaxTraces          = 10
	MaxTriggers        = 10
	MaxSources         = 8
	DefaultMemoryDepth = 16
)

var (
	ErrTraceIndex      = errors.New("engine: trace index out of range")
	ErrTriggerIndex    = errors.New("engine: trigger index out of range")
	ErrMemoryIndex     = errors.New("engine: memory index out of range")
	ErrSourceIndex     = errors.New("engine: source index out of range")
	ErrProjection      = errors.New("engine: unknown projection")
	ErrTooManyTraces   = errors.New("engine: too many traces")
	ErrTooManyTriggers = errors.New("engine: too many triggers")
)

// FeedResult tells what Feed did with a batch.
type FeedResult int

const (
	Accepted FeedResult = iota // pushed into the history
	Dropped                    // configuration lock busy, batch lost
	Ignored                    // no history for the source
)

func (r FeedResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Dropped:
		return "dropped"
	case Ignored:
		return "ignored"
	}
	return "unknown"
}

// Settings are the acquisition parameters set by Configure.
type Settings struct {
	Sources            int
	TraceSize          int
	TimeBase           int
	TimeOffsetPerMille int
	PreTrigger         int
	FreeRun            bool
}

// DefaultSettings returns one source, 1000-sample traces, no pre-trigger.
func DefaultSettings() Settings {
	return Settings{
		Sources:   1,
		TraceSize: 1000,
		TimeBase:  1,
	}
}

func (s Settings) clamped() Settings {
	s.Sources = min(max(s.Sources, 1), MaxSources)
	s.TraceSize = max(s.TraceSize, 1)
	s.TimeBase = max(s.TimeBase, 1)
	s.TimeOffsetPerMille = min(max(s.TimeOffsetPerMille, 0), 1000)
	s.PreTrigger = min(max(s.PreTrigger, 0), s.TraceSize)
	return s
}

// Options are fixed at construction.
type Options struct {
	Settings    Settings
	MemoryDepth int

	// OnPublish receives every published frame. It runs on the worker
	// goroutine with the configuration lock held and must not block.
	OnPublish func(model.Frame)
}

// Engine is the triggered capture core.
type Engine struct {
	cfgMu sync.Mutex

	settings    Settings
	oneShot     bool
	waitReset   bool
	memory      int
	memoryDepth int
	sampleRate  int

	sources [MaxSources]*history.Source
	traces  trace.List
	chain   *trigger.Chain
	out     *trace.DoubleBuffer
	cache   projector.Cache
	scratch []model.Sample

	searchPos  int64
	pending    bool  // a trigger instant was found, extraction not done yet
	triggerPos int64 // trigger instant of the pending capture
	seq        uint64
	captures   uint64

	onPublish func(model.Frame)

	status      atomic.Pointer[Status]
	dropped     atomic.Uint64
	lastDropLog atomic.Int64
}

// New builds an engine. Histories exist for every source below
// Settings.Sources; later ones are created when a trace or trigger uses them.
func New(opts Options) *Engine {
	depth := opts.MemoryDepth
	if depth <= 0 {
		depth = DefaultMemoryDepth
	}
	s := opts.Settings
	if s.TraceSize == 0 {
		s.TraceSize = DefaultSettings().TraceSize
	}
	e := &Engine{
		memoryDepth: depth,
		chain:       trigger.NewChain(),
		onPublish:   opts.OnPublish,
	}
	e.applySettings(s.clamped())
	e.out = trace.NewDoubleBuffer(0, e.settings.TraceSize)
	e.publishStatus()
	return e
}

// ─── Sample path ───

// Feed appends samples to a source and runs the capture cycle. It never
// waits for the configuration lock: on contention the batch is dropped.
func (e *Engine) Feed(source int, samples []model.Sample) FeedResult {
	if !e.cfgMu.TryLock() {
		e.drop()
		return Dropped
	}
	defer e.cfgMu.Unlock()

	if source < 0 || source >= MaxSources || e.sources[source] == nil {
		metrics.FeedBatches.WithLabelValues(Ignored.String()).Inc()
		return Ignored
	}
	e.sources[source].Push(samples)
	metrics.FeedBatches.WithLabelValues(Accepted.String()).Inc()
	metrics.Samples.Add(float64(len(samples)))

	if !e.waitReset && e.memory == 0 {
		e.process()
	}
	e.publishStatus()
	return Accepted
}

// Dropped returns the number of batches lost to lock contention.
func (e *Engine) Dropped() uint64 { return e.dropped.Load() }

func (e *Engine) drop() {
	n := e.dropped.Add(1)
	metrics.FeedBatches.WithLabelValues(Dropped.String()).Inc()

	now := time.Now().UnixNano()
	last := e.lastDropLog.Load()
	if now-last >= int64(time.Second) && e.lastDropLog.CompareAndSwap(last, now) {
		log.Printf("[Engine] configuration busy, %d batches dropped so far", n)
	}
}

// process alternates search and extraction until it runs out of samples.
func (e *Engine) process() {
	for !e.waitReset {
		if !e.pending && !e.search() {
			return
		}
		if !e.capture() {
			return
		}
	}
}

func (e *Engine) lookback() int64 {
	return int64(e.settings.PreTrigger + e.traces.MaxDelay())
}

// refSource is the source free-run captures are timed on.
func (e *Engine) refSource() int {
	if s, ok := e.traces.At(0); ok {
		return s.Source
	}
	return 0
}

// floor is the first position a capture on h may start at.
func (e *Engine) floor(h *history.Source) int64 {
	return max(e.searchPos, e.lookback(), h.Oldest()+e.lookback())
}

// search looks for the next trigger instant from searchPos. It returns true
// with pending set when one is found.
func (e *Engine) search() bool {
	if e.settings.FreeRun || e.chain.Len() == 0 {
		h := e.sources[e.refSource()]
		if h == nil {
			return false
		}
		e.searchPos = e.floor(h)
		e.triggerPos = e.searchPos
		e.pending = true
		return true
	}

next:
	for {
		cond := e.chain.Current()
		h := e.sources[cond.Spec().Source]
		if h == nil {
			return false
		}
		pos := e.floor(h)
		for ; pos < h.Written(); pos++ {
			s, _ := h.At(pos)
			link := e.chain.Index()
			if e.chain.Step(s) {
				e.searchPos = pos
				e.triggerPos = pos
				e.pending = true
				return true
			}
			if e.chain.Index() != link {
				// The next link may watch another source.
				e.searchPos = pos + 1
				continue next
			}
		}
		e.searchPos = pos
		return false
	}
}

// required lists the sources a capture reads from.
func (e *Engine) required() []int {
	srcs := e.traces.Sources()
	if len(srcs) == 0 {
		srcs = []int{e.refSource()}
	}
	return srcs
}

// capture extracts and publishes the pending capture. It returns false when
// it has to wait for more samples or for a reader to leave the back buffer.
func (e *Engine) capture() bool {
	size := e.settings.TraceSize
	end := e.triggerPos + int64(size)
	for _, src := range e.required() {
		h := e.sources[src]
		if h == nil || h.Written() < end {
			return false
		}
	}

	out, ok := e.out.BeginWrite(false)
	if !ok {
		metrics.CaptureOutcomes.WithLabelValues("deferred").Inc()
		return false
	}
	start := time.Now()

	if !e.extractLive(out) {
		e.out.EndWrite(false)
		metrics.CaptureOutcomes.WithLabelValues("abandoned").Inc()
		e.searchPos = e.triggerPos + 1
		e.pending = false
		e.chain.Rearm()
		return true
	}

	tb := e.traces.MaxDelay()
	for _, h := range e.sources {
		if h != nil {
			h.MarkSnapshot(end, tb, e.settings.PreTrigger, size)
		}
	}

	frame := e.frame(out, e.triggerPos, 0)
	e.out.EndWrite(true)
	e.captures++
	metrics.Captures.WithLabelValues("live").Inc()
	metrics.ExtractSeconds.Observe(time.Since(start).Seconds())

	e.searchPos = end
	e.pending = false
	e.chain.Rearm()
	if e.oneShot {
		e.waitReset = true
	}
	e.emit(frame)
	return true
}

// extractLive runs the three windows of every traced source from the rings.
func (e *Engine) extractLive(out []model.TraceBuffer) bool {
	t := e.triggerPos
	tb := e.traces.MaxDelay()
	pre := e.settings.PreTrigger
	size := e.settings.TraceSize
	lay := e.layout()

	e.traces.Begin(out)
	for _, src := range e.traces.Sources() {
		h := e.sources[src]
		var err error
		if tb > 0 {
			if e.scratch, err = h.WindowBack(e.scratch, t-int64(pre), tb); err != nil {
				return false
			}
			e.traces.Extract(out, src, e.scratch, t-int64(pre+tb), true, lay, &e.cache)
		}
		if pre > 0 {
			if e.scratch, err = h.WindowBack(e.scratch, t, pre); err != nil {
				return false
			}
			e.traces.Extract(out, src, e.scratch, t-int64(pre), false, lay, &e.cache)
		}
		if e.scratch, err = h.WindowBack(e.scratch, t+int64(size), size); err != nil {
			return false
		}
		e.traces.Extract(out, src, e.scratch, t, false, lay, &e.cache)
	}
	return true
}

// replay extracts the selected snapshot into the output and publishes it.
// It waits for readers: it runs on the configuration path only.
func (e *Engine) replay() {
	k := e.memory
	out, _ := e.out.BeginWrite(true)
	lay := e.layout()
	var trig int64 = -1

	e.traces.Begin(out)
	for _, src := range e.traces.Sources() {
		h := e.sources[src]
		if h == nil {
			continue
		}
		snap, err := h.ReplaySnapshot(k)
		if err != nil || snap.Empty() {
			continue
		}
		trig = snap.Trigger()
		tbw, prew, mainw := snap.Regions()
		if len(tbw) > 0 {
			e.traces.Extract(out, src, tbw, snap.Trigger()-int64(snap.Pre+snap.TraceBack), true, lay, &e.cache)
		}
		if len(prew) > 0 {
			e.traces.Extract(out, src, prew, snap.Trigger()-int64(snap.Pre), false, lay, &e.cache)
		}
		e.traces.Extract(out, src, mainw, snap.Trigger(), false, lay, &e.cache)
	}

	frame := e.frame(out, trig, k)
	e.out.EndWrite(true)
	metrics.Captures.WithLabelValues("replay").Inc()
	e.emit(frame)
}

func (e *Engine) layout() trace.Layout {
	s := e.settings
	return trace.NewLayout(s.TraceSize, s.TimeBase, s.TimeOffsetPerMille)
}

func (e *Engine) frame(out []model.TraceBuffer, trig int64, memory int) model.Frame {
	e.seq++
	f := model.Frame{
		ID:         uuid.NewString(),
		Seq:        e.seq,
		Time:       time.Now().UnixMilli(),
		TriggerPos: trig,
		Memory:     memory,
		SampleRate: e.sampleRate,
		TraceSize:  e.settings.TraceSize,
		Traces:     make([]model.TraceBuffer, len(out)),
	}
	for i := range out {
		f.Traces[i] = out[i].Clone()
	}
	return f
}

func (e *Engine) emit(f model.Frame) {
	if e.onPublish != nil {
		e.onPublish(f)
	}
}

// ─── Renderer side ───

// CurrentTraces returns a copy of the stable buffer.
func (e *Engine) CurrentTraces() []model.TraceBuffer {
	return e.out.Copy()
}

// View calls fn with the stable buffer under its read lock. fn must not
// keep the slice and should return quickly: while it runs the engine cannot
// publish into that buffer.
func (e *Engine) View(fn func([]model.TraceBuffer)) {
	e.out.View(fn)
}

// SetSeq sets the sequence number of the last published frame, so that a
// restarted process continues the numbering of its capture log.
func (e *Engine) SetSeq(seq uint64) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.seq = seq
}
