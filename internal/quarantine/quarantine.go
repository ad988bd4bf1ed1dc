// Package quarantine exports batches of failed rows for operator triage,
// adapted from the teacher's dead-letter-queue writer: same
// write-entry/rotate-by-size shape, narrowed to a one-shot export (this
// pipeline re-reads the failing row from its own table on the next run
// rather than replaying from the DLQ file, so there is no reprocessing
// loop here, only an export). Entries are newline-delimited JSON, gzip
// compressed, one growing file per Writer (one per process) until it
// crosses Config.MaxFileSize.
package quarantine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
)

type Entry struct {
	Timestamp time.Time         `json:"timestamp"`
	Stage     string            `json:"stage"`
	RunID     int64             `json:"run_id"`
	Reference string            `json:"reference"` // xml_sha256, zip_sha256, or observation path
	ErrorCode string            `json:"error_code"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

type Config struct {
	Directory   string
	MaxFileSize int64 // bytes; 0 disables rotation
}

type Writer struct {
	cfg    Config
	logger *logrus.Logger

	mu       sync.Mutex
	file     *os.File
	gz       *gzip.Writer
	buf      *bufio.Writer
	written  int64
	fileSeq  int
}

func New(cfg Config, logger *logrus.Logger) (*Writer, error) {
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("quarantine: create directory: %w", err)
	}
	w := &Writer{cfg: cfg, logger: logger}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write appends one entry, rotating to a fresh gzip file first if the
// current one has crossed MaxFileSize.
func (w *Writer) Write(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.shouldRotate() {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("quarantine: marshal entry: %w", err)
	}
	data = append(data, '\n')

	n, err := w.buf.Write(data)
	if err != nil {
		return fmt.Errorf("quarantine: write entry: %w", err)
	}
	w.written += int64(n)
	return nil
}

func (w *Writer) shouldRotate() bool {
	if w.cfg.MaxFileSize <= 0 {
		return false
	}
	return w.written >= w.cfg.MaxFileSize
}

func (w *Writer) rotate() error {
	if err := w.closeCurrent(); err != nil {
		w.logger.WithError(err).Warn("quarantine: error closing file during rotation")
	}
	w.fileSeq++
	return w.openFile()
}

func (w *Writer) openFile() error {
	name := fmt.Sprintf("quarantine_%s_%03d.jsonl.gz", time.Now().UTC().Format("20060102T150405"), w.fileSeq)
	f, err := os.Create(filepath.Join(w.cfg.Directory, name))
	if err != nil {
		return fmt.Errorf("quarantine: create file: %w", err)
	}
	w.file = f
	w.gz = gzip.NewWriter(f)
	w.buf = bufio.NewWriter(w.gz)
	w.written = 0
	return nil
}

func (w *Writer) closeCurrent() error {
	if w.buf != nil {
		if err := w.buf.Flush(); err != nil {
			return err
		}
	}
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			return err
		}
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// Close flushes and closes the current quarantine file. Safe to call once
// at the end of a run.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeCurrent()
}
