package recorder

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/parquet-go"

	"iq-scope/internal/model"
)

func testFrame() model.Frame {
	return model.Frame{
		ID:         "0b6e",
		Seq:        12,
		TriggerPos: 4096,
		TraceSize:  4,
		Traces: []model.TraceBuffer{
			{Source: 0, Projection: "mag_db", Count: 3, Overlay: "-3.0  -6.0   3.0",
				Points: []model.Point{{X: 0, Y: 0.1}, {X: 1, Y: 0.2}, {X: 2, Y: 0.3}, {X: 3, Y: 9}}},
			{Source: 1, Projection: "real", Count: 4,
				Points: []model.Point{{X: 0, Y: -0.1}, {X: 1, Y: -0.2}, {X: 2, Y: -0.3}, {X: 3, Y: -0.4}}},
		},
	}
}

func TestWriteFrame(t *testing.T) {
	f := testFrame()
	var buf bytes.Buffer
	if err := WriteFrame(&buf, &f); err != nil {
		t.Fatal(err)
	}

	pf, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if pf.NumRows() != 7 {
		t.Fatalf("rows = %d, want 7", pf.NumRows())
	}
	if v, ok := pf.Lookup("trigger_pos"); !ok || v != "4096" {
		t.Fatalf("trigger_pos metadata = %q, %v", v, ok)
	}

	rd := parquet.NewGenericReader[TracePoint](bytes.NewReader(buf.Bytes()))
	defer rd.Close()
	rows := make([]TracePoint, 7)
	n, err := rd.Read(rows)
	if err != nil && err != io.EOF {
		t.Fatal(err)
	}
	if n != 7 {
		t.Fatalf("read %d rows", n)
	}
	if rows[2].Y != 0.3 || rows[3].Trace != 1 || rows[3].Projection != "real" || rows[6].Index != 3 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestRecorderWritesFiles(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir, 4)
	if err != nil {
		t.Fatal(err)
	}
	f := testFrame()
	r.Record(f)
	r.Close()

	info, err := os.Stat(filepath.Join(dir, FileName(&f)))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Fatal("empty parquet file")
	}
}
