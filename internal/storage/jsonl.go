// Package storage writes the import journal: one JSON line per setting
// outcome, in date-organized files rotated by lumberjack.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	ErrWriterClosed = errors.New("storage: writer is closed")
	ErrBufferFull   = errors.New("storage: buffer full")
)

// JSONLWriter appends records asynchronously to
// baseDir/<date>/<subDir>/<fileBase>.jsonl.
type JSONLWriter struct {
	baseDir   string
	subDir    string
	fileBase  string
	maxSizeMB int

	writeCh   chan any
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
	now         func() time.Time
}

// NewJSONLWriter starts a writer. An empty fileBase names files after the
// time they were opened.
func NewJSONLWriter(baseDir, subDir, fileBase string, bufferSize, maxSizeMB int) *JSONLWriter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	w := &JSONLWriter{
		baseDir:   baseDir,
		subDir:    subDir,
		fileBase:  fileBase,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}
	w.wg.Add(1)
	go w.writeLoop()
	return w
}

// Write queues a record. It never blocks; a full buffer drops the record.
func (w *JSONLWriter) Write(record any) error {
	select {
	case <-w.done:
		return ErrWriterClosed
	default:
	}
	select {
	case w.writeCh <- record:
		return nil
	default:
		slog.Warn("journal buffer full, dropping record", "subdir", w.subDir)
		return ErrBufferFull
	}
}

// Close flushes queued records and closes the current file.
func (w *JSONLWriter) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		err := w.logger.Close()
		w.logger = nil
		return err
	}
	return nil
}

func (w *JSONLWriter) writeLoop() {
	defer w.wg.Done()
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-w.done:
			w.drain()
			return
		}
	}
}

func (w *JSONLWriter) drain() {
	deadline := time.After(5 * time.Second)
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-deadline:
			slog.Warn("journal close timeout, some records may be lost", "subdir", w.subDir)
			return
		default:
			return
		}
	}
}

func (w *JSONLWriter) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("journal marshal failed", "error", err, "subdir", w.subDir)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	date := w.now().UTC().Format("2006-01-02")
	if w.logger == nil || date != w.currentDate {
		if err := w.rotateForDate(date); err != nil {
			slog.Error("journal open failed", "error", err, "subdir", w.subDir)
			return
		}
	}
	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "error", err, "subdir", w.subDir)
	}
}

func (w *JSONLWriter) rotateForDate(date string) error {
	if w.logger != nil {
		_ = w.logger.Close()
		w.logger = nil
	}

	dir := filepath.Join(w.baseDir, date, w.subDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	base := w.fileBase
	if base == "" {
		base = fmt.Sprintf("%d", w.now().Unix())
	}
	filename := filepath.Join(dir, base+".jsonl")

	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 30,
		MaxAge:     30,
		LocalTime:  false,
	}
	w.currentDate = date
	slog.Debug("journal file opened", "file", filename)
	return nil
}
