package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"iq-scope/internal/model"
)

func TestBuildLogRow(t *testing.T) {
	f := model.Frame{
		ID:         "abc",
		Seq:        7,
		Time:       1000,
		TriggerPos: 50,
		TraceSize:  4,
		Traces: []model.TraceBuffer{
			{Count: 2, Points: []model.Point{{Y: 0.5}, {Y: -1}, {Y: 0.9}, {Y: 0.9}}},
			{Count: 2, Overlay: "-3.0  -6.0   3.0", Points: []model.Point{{Y: 0.25}, {Y: 0.25}, {}, {}}},
		},
	}
	row := BuildLogRow(&f)
	if row.Peak != 1 {
		t.Fatalf("peak = %v, want 1", row.Peak)
	}
	if row.Mean != 0.5 {
		t.Fatalf("mean = %v, want 0.5", row.Mean)
	}
	if row.Traces != 2 || row.Overlays != "-3.0  -6.0   3.0" || row.Seq != 7 {
		t.Fatalf("row = %+v", row)
	}
}

// TestLoggerWritesDailyFile verifies rows land in the file of their UTC day
// under a single header.
func TestLoggerWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(dir)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	l.Log(LogRow{Timestamp: ts, Seq: 1, ID: "a", TraceSize: 100, Traces: 1, Peak: 0.6, Mean: 0.2})
	l.Log(LogRow{Timestamp: ts + 1, Seq: 2, ID: "b", TraceSize: 100, Traces: 1})
	l.Close()

	data, err := os.ReadFile(filepath.Join(dir, "2024-03-01.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 || lines[0] != Header {
		t.Fatalf("file = %q", data)
	}
	want := "1709294400000,1,a,0,0,0,100,1,0.6000,0.2000,"
	if lines[1] != want {
		t.Fatalf("row = %q, want %q", lines[1], want)
	}
}
