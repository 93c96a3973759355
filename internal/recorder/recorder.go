// Package recorder exports published frames as parquet files, one file per
// capture, for offline analysis.
package recorder

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/segmentio/parquet-go"

	"iq-scope/internal/metrics"
	"iq-scope/internal/model"
)

// TracePoint is one row: one displayed point of one trace.
type TracePoint struct {
	Trace      int32   `parquet:"trace"`
	Source     int32   `parquet:"source"`
	Projection string  `parquet:"projection,dict"`
	Index      int32   `parquet:"index"`
	X          float32 `parquet:"x"`
	Y          float32 `parquet:"y"`
}

// WriteFrame writes the valid points of every trace of f. Frame fields go
// into the file key/value metadata.
func WriteFrame(w io.Writer, f *model.Frame) error {
	overlays := make([]string, len(f.Traces))
	for i := range f.Traces {
		overlays[i] = f.Traces[i].Overlay
	}
	ov, _ := json.Marshal(overlays)

	pw := parquet.NewGenericWriter[TracePoint](w,
		parquet.KeyValueMetadata("id", f.ID),
		parquet.KeyValueMetadata("seq", strconv.FormatUint(f.Seq, 10)),
		parquet.KeyValueMetadata("time", strconv.FormatInt(f.Time, 10)),
		parquet.KeyValueMetadata("trigger_pos", strconv.FormatInt(f.TriggerPos, 10)),
		parquet.KeyValueMetadata("memory", strconv.Itoa(f.Memory)),
		parquet.KeyValueMetadata("sample_rate", strconv.Itoa(f.SampleRate)),
		parquet.KeyValueMetadata("trace_size", strconv.Itoa(f.TraceSize)),
		parquet.KeyValueMetadata("overlays", string(ov)),
	)

	for ti := range f.Traces {
		tb := &f.Traces[ti]
		n := min(tb.Count, len(tb.Points))
		rows := make([]TracePoint, n)
		for k, p := range tb.Points[:n] {
			rows[k] = TracePoint{
				Trace:      int32(ti),
				Source:     int32(tb.Source),
				Projection: tb.Projection,
				Index:      int32(k),
				X:          p.X,
				Y:          p.Y,
			}
		}
		if _, err := pw.Write(rows); err != nil {
			pw.Close()
			return fmt.Errorf("write trace %d: %w", ti, err)
		}
	}
	return pw.Close()
}

// FileName is the file a frame is recorded to.
func FileName(f *model.Frame) string {
	return fmt.Sprintf("capture-%08d-%s.parquet", f.Seq, f.ID)
}

// Recorder writes frames asynchronously under dir.
type Recorder struct {
	dir  string
	ch   chan model.Frame
	done chan struct{}
	once sync.Once
}

// New creates the directory and starts the writer goroutine.
func New(dir string, queue int) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create recorder dir: %w", err)
	}
	r := &Recorder{
		dir:  dir,
		ch:   make(chan model.Frame, max(queue, 1)),
		done: make(chan struct{}),
	}
	go r.run()
	return r, nil
}

// Record queues a frame; it is dropped if the writer is behind.
// Must not be called after Close.
func (r *Recorder) Record(f model.Frame) {
	select {
	case r.ch <- f:
	default:
		metrics.QueueDrops.WithLabelValues("recorder").Inc()
	}
}

// Close writes the queued frames and stops the goroutine.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.ch) })
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for f := range r.ch {
		if err := r.write(&f); err != nil {
			log.Printf("[Recorder] frame %d: %v", f.Seq, err)
		}
	}
}

func (r *Recorder) write(f *model.Frame) error {
	path := filepath.Join(r.dir, FileName(f))
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteFrame(file, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
