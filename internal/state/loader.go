package state

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	csvlogger "iq-scope/internal/logger"
)

// LoadFromCSV reads the newest capture log in logDir and returns its last
// `limit` rows (all of them when limit is 0).
func LoadFromCSV(logDir string, limit int) []csvlogger.LogRow {
	path, ok := latestLog(logDir)
	if !ok {
		log.Printf("[Loader] No capture logs in %s", logDir)
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		log.Printf("[Loader] Failed to open %s: %v", path, err)
		return nil
	}
	defer f.Close()

	rows, err := ReadLog(f, limit)
	if err != nil {
		log.Printf("[Loader] %s: %v", path, err)
		return nil
	}
	log.Printf("[Loader] %d capture rows from %s", len(rows), path)
	return rows
}

// latestLog picks the newest YYYY-MM-DD.csv file.
func latestLog(dir string) (string, bool) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil || len(files) == 0 {
		return "", false
	}
	sort.Strings(files)
	return files[len(files)-1], true
}

// ReadLog parses a capture log. Columns are looked up by header name so
// older files with fewer columns still load; malformed lines and rows
// without a timestamp are skipped.
func ReadLog(r io.Reader, limit int) ([]csvlogger.LogRow, error) {
	reader := csv.NewReader(bufio.NewReaderSize(r, 1<<20))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}

	var out []csvlogger.LogRow
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		row := csvRowToLogRow(rec, idx)
		if row.Timestamp == 0 {
			continue
		}
		out = append(out, row)
		if limit > 0 && len(out) > 2*limit {
			out = append(out[:0], out[len(out)-limit:]...)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// LastSequence returns the highest capture sequence number in the latest log
// file, 0 when there is none.
func LastSequence(logDir string) uint64 {
	var seq uint64
	for _, r := range LoadFromCSV(logDir, 0) {
		seq = max(seq, r.Seq)
	}
	return seq
}

func csvRowToLogRow(row []string, idx map[string]int) csvlogger.LogRow {
	str := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	get := func(col string) float64 {
		v, _ := strconv.ParseFloat(str(col), 64)
		return v
	}
	getInt := func(col string) int {
		v, _ := strconv.Atoi(str(col))
		return v
	}
	getInt64 := func(col string) int64 {
		v, _ := strconv.ParseInt(str(col), 10, 64)
		return v
	}
	getUint64 := func(col string) uint64 {
		v, _ := strconv.ParseUint(str(col), 10, 64)
		return v
	}

	return csvlogger.LogRow{
		Timestamp:  getInt64("timestamp"),
		Seq:        getUint64("seq"),
		ID:         str("id"),
		TriggerPos: getInt64("trigger_pos"),
		Memory:     getInt("memory"),
		SampleRate: getInt("sample_rate"),
		TraceSize:  getInt("trace_size"),
		Traces:     getInt("traces"),
		Peak:       get("peak"),
		Mean:       get("mean"),
		Overlays:   str("overlays"),
	}
}
