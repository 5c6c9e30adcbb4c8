package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
)

const (
	filePrefix = "changes"
	fileSuffix = ".jsonl.zst"
	dayLayout  = "2006-01-02"
)

// Log appends state changes to daily zstd JSONL files under a directory.
type Log struct {
	dir   string
	clock func() time.Time

	mu     sync.Mutex
	curDay string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

// Open prepares a log rooted at dir. Files are created lazily on first append.
func Open(dir string, clock func() time.Time) (*Log, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("audit dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	if clock == nil {
		clock = time.Now
	}
	return &Log{dir: dir, clock: clock}, nil
}

// Append writes changes in order. Each change is flushed before returning so a
// crash loses at most the frame being written.
func (l *Log) Append(ctx context.Context, changes []outcome.StateChange) error {
	if l == nil || len(changes) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	day := l.clock().UTC().Format(dayLayout)
	if day != l.curDay || l.w == nil {
		if err := l.rotateLocked(day); err != nil {
			return err
		}
	}
	for _, change := range changes {
		b, err := json.Marshal(change)
		if err != nil {
			return fmt.Errorf("encode change: %w", err)
		}
		if _, err := l.w.Write(b); err != nil {
			return err
		}
		if err := l.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := l.w.Flush(); err != nil {
		return err
	}
	// Flush the encoder so the frame is on disk and readable while open.
	return l.enc.Flush()
}

// Close flushes and closes the current file.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *Log) pathForDay(day string) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s-%s%s", filePrefix, day, fileSuffix))
}

func (l *Log) rotateLocked(day string) error {
	if err := l.closeLocked(); err != nil {
		return err
	}
	f, err := os.OpenFile(l.pathForDay(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("open audit encoder: %w", err)
	}
	l.f = f
	l.enc = enc
	l.w = bufio.NewWriterSize(enc, 64*1024)
	l.curDay = day
	return nil
}

func (l *Log) closeLocked() error {
	var err error
	if l.w != nil {
		_ = l.w.Flush()
	}
	if l.enc != nil {
		err = l.enc.Close()
		l.enc = nil
	}
	if l.f != nil {
		if cerr := l.f.Close(); err == nil {
			err = cerr
		}
		l.f = nil
	}
	l.w = nil
	l.curDay = ""
	return err
}

// Read returns the recorded changes of a world, oldest first. An empty worldID
// returns every world. At most limit changes are returned when limit > 0,
// keeping the newest.
func (l *Log) Read(ctx context.Context, worldID string, limit int) ([]outcome.StateChange, error) {
	l.mu.Lock()
	if l.w != nil {
		_ = l.w.Flush()
		_ = l.enc.Flush()
	}
	l.mu.Unlock()

	files, err := l.files()
	if err != nil {
		return nil, err
	}
	var out []outcome.StateChange
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changes, err := readFile(path, worldID)
		if err != nil {
			return nil, err
		}
		out = append(out, changes...)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (l *Log) files() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list audit dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix+"-") || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		out = append(out, filepath.Join(l.dir, name))
	}
	// Day-stamped names sort chronologically.
	sort.Strings(out)
	return out, nil
}

func readFile(path, worldID string) ([]outcome.StateChange, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var out []outcome.StateChange
	for sc.Scan() {
		var change outcome.StateChange
		if err := json.Unmarshal(sc.Bytes(), &change); err != nil {
			return nil, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if worldID != "" && change.WorldID != worldID {
			continue
		}
		out = append(out, change)
	}
	// A truncated trailing frame after a crash ends the file early.
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%s: read: %w", filepath.Base(path), err)
	}
	return out, nil
}
