package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const maxLineBytes = 1024 * 1024

// DefaultPollInterval is how often Follow checks the file for new lines.
const DefaultPollInterval = 250 * time.Millisecond

// Filter selects log lines. An empty filter matches everything.
type Filter struct {
	RunID string
	Stage string
}

func (f Filter) empty() bool {
	return f.RunID == "" && f.Stage == ""
}

// Match reports whether a log line belongs to the filter. JSON lines are
// matched on their run_id and stage fields; console lines fall back to a
// key=value substring check.
func (f Filter) Match(line string) bool {
	if f.empty() {
		return true
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err == nil {
		return fieldMatches(record, "run_id", f.RunID) && fieldMatches(record, "stage", f.Stage)
	}
	if f.RunID != "" && !strings.Contains(line, f.RunID) {
		return false
	}
	if f.Stage != "" && !strings.Contains(line, f.Stage) {
		return false
	}
	return true
}

func fieldMatches(record map[string]any, key, want string) bool {
	if want == "" {
		return true
	}
	got, _ := record[key].(string)
	return got == want
}

// Result carries the lines read and the offset to resume from.
type Result struct {
	Lines  []string
	Offset int64
}

// Tail returns up to limit of the newest matching lines. A missing file is
// not an error. limit <= 0 returns every matching line.
func Tail(path string, limit int, filter Filter) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return Result{}, fmt.Errorf("log path %q is a directory", path)
	}

	lines, offset, err := scan(file, filter, limit)
	if err != nil {
		return Result{}, err
	}
	return Result{Lines: lines, Offset: offset}, nil
}

// Follow polls path from offset and hands each new matching line to emit
// until ctx is cancelled. A truncated file is re-read from the start.
func Follow(ctx context.Context, path string, offset int64, filter Filter, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, filter, emit)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, filter Filter, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	lines, next, err := scan(file, filter, 0)
	if err != nil {
		return offset, err
	}
	for _, line := range lines {
		emit(line)
	}
	return next, nil
}

// scan reads complete lines from the current position. A trailing partial
// line is left for the next read so followers never emit half a record.
func scan(file *os.File, filter Filter, limit int) ([]string, int64, error) {
	start, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var (
		ring     []string
		next     int
		consumed = start
	)
	keep := func(line string) {
		if limit <= 0 {
			ring = append(ring, line)
			return
		}
		if len(ring) < limit {
			ring = append(ring, line)
			return
		}
		ring[next] = line
		next = (next + 1) % limit
	}

	for {
		raw, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(raw))
		line := strings.TrimRight(raw, "\r\n")
		if len(line) > maxLineBytes {
			line = line[:maxLineBytes]
		}
		if line == "" || !filter.Match(line) {
			continue
		}
		keep(line)
	}

	if limit > 0 && len(ring) == limit && next > 0 {
		ordered := make([]string, 0, limit)
		ordered = append(ordered, ring[next:]...)
		ordered = append(ordered, ring[:next]...)
		ring = ordered
	}
	return ring, consumed, nil
}
