package logger

import (
	"bufio"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"iq-scope/internal/metrics"
	"iq-scope/internal/model"
)

// =============================================================================
// ASYNC CAPTURE LOGGER — Zero sample-path impact
// =============================================================================
//
// Architecture:
//   frame dispatcher → logCh (buffered 4096) → Logger goroutine → daily CSV
//
// Performance guarantees:
//   • Callers send via non-blocking select (drops if full)
//   • Batched writes: flushes bufio.Writer every 1 second
//   • bufio buffer: 1MB — absorbs bursts, minimizes syscalls
//   • Append-only daily rotation via filename: <dir>/YYYY-MM-DD.csv
//
// CSV schema (11 columns), one row per published frame:
//   timestamp,seq,id,trigger_pos,memory,sample_rate,trace_size,
//   traces,peak,mean,overlays
//
// peak/mean are over |y| of every displayed point of every trace.
// overlays joins the per-trace overlay texts with ';' (empty when none).
// =============================================================================

const (
	chanSize    = 4096
	bufSize     = 1 << 20 // 1 MB
	flushPeriod = 1 * time.Second
)

// Header is the first line of every log file.
const Header = "timestamp,seq,id,trigger_pos,memory,sample_rate,trace_size,traces,peak,mean,overlays"

// LogRow — one capture summary. Built from a Frame off the sample path.
type LogRow struct {
	Timestamp  int64 // unix ms
	Seq        uint64
	ID         string
	TriggerPos int64
	Memory     int
	SampleRate int
	TraceSize  int
	Traces     int
	Peak       float64
	Mean       float64
	Overlays   string
}

// Logger — async CSV writer.
type Logger struct {
	dir  string
	ch   chan LogRow
	done chan struct{}
	once sync.Once
}

// NewLogger — creates the logger writing under dir and starts its
// background goroutine.
func NewLogger(dir string) *Logger {
	l := &Logger{
		dir:  dir,
		ch:   make(chan LogRow, chanSize),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Log — non-blocking send. Drops the row if the channel is full.
// Must not be called after Close.
func (l *Logger) Log(row LogRow) {
	select {
	case l.ch <- row:
	default:
		metrics.QueueDrops.WithLabelValues("csv").Inc()
	}
}

// Close flushes pending rows and stops the goroutine.
func (l *Logger) Close() {
	l.once.Do(func() { close(l.ch) })
	<-l.done
}

// run — background goroutine. Batches writes, rotates daily.
func (l *Logger) run() {
	defer close(l.done)

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		log.Printf("Logger: failed to create dir: %v", err)
		for range l.ch {
		}
		return
	}

	var (
		currentDay string
		file       *os.File
		writer     *bufio.Writer
	)

	ticker := time.NewTicker(flushPeriod)
	defer ticker.Stop()

	openFile := func(day string) {
		if file != nil {
			writer.Flush()
			file.Close()
			file, writer = nil, nil
		}

		path := filepath.Join(l.dir, day+".csv")
		var err error
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("Logger: failed to open %s: %v", path, err)
			file = nil
			return
		}

		writer = bufio.NewWriterSize(file, bufSize)

		// Write header if new file
		info, _ := file.Stat()
		if info != nil && info.Size() == 0 {
			fmt.Fprintln(writer, Header)
		}

		currentDay = day
		log.Printf("Logger: writing to %s", path)
	}

	for {
		select {
		case row, ok := <-l.ch:
			if !ok {
				if writer != nil {
					writer.Flush()
				}
				if file != nil {
					file.Close()
				}
				return
			}

			day := time.UnixMilli(row.Timestamp).UTC().Format("2006-01-02")
			if day != currentDay {
				openFile(day)
			}
			if writer == nil {
				continue
			}

			fmt.Fprintf(writer, "%d,%d,%s,%d,%d,%d,%d,%d,%.4f,%.4f,%s\n",
				row.Timestamp,
				row.Seq,
				row.ID,
				row.TriggerPos,
				row.Memory,
				row.SampleRate,
				row.TraceSize,
				row.Traces,
				row.Peak,
				row.Mean,
				row.Overlays,
			)

		case <-ticker.C:
			if writer != nil {
				writer.Flush()
			}
		}
	}
}

// BuildLogRow — summarizes a frame.
func BuildLogRow(f *model.Frame) LogRow {
	var (
		peak, sum float64
		n         int
		overlays  []string
	)
	for i := range f.Traces {
		tb := &f.Traces[i]
		for _, p := range tb.Points[:min(tb.Count, len(tb.Points))] {
			v := math.Abs(float64(p.Y))
			peak = max(peak, v)
			sum += v
			n++
		}
		if tb.Overlay != "" {
			overlays = append(overlays, tb.Overlay)
		}
	}
	mean := 0.0
	if n > 0 {
		mean = sum / float64(n)
	}
	return LogRow{
		Timestamp:  f.Time,
		Seq:        f.Seq,
		ID:         f.ID,
		TriggerPos: f.TriggerPos,
		Memory:     f.Memory,
		SampleRate: f.SampleRate,
		TraceSize:  f.TraceSize,
		Traces:     len(f.Traces),
		Peak:       peak,
		Mean:       mean,
		Overlays:   strings.Join(overlays, ";"),
	}
}
