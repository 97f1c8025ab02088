package storage

import (
	"log/slog"
	"sync"
)

// WriterRegistry hands out one JSONLWriter per page segment and tab, so each
// tab's journal for a page lands in its own file.
type WriterRegistry struct {
	baseDir    string
	maxSizeMB  int
	bufferSize int

	mu      sync.RWMutex
	writers map[string]map[string]*JSONLWriter // segment -> short tab id
}

func NewWriterRegistry(baseDir string, bufferSize, maxSizeMB int) *WriterRegistry {
	return &WriterRegistry{
		baseDir:    baseDir,
		maxSizeMB:  maxSizeMB,
		bufferSize: bufferSize,
		writers:    make(map[string]map[string]*JSONLWriter),
	}
}

// GetWriter returns, creating on first use, the writer for segment and tab.
func (r *WriterRegistry) GetWriter(segment, tabID string) *JSONLWriter {
	short := ShortTabID(tabID)

	r.mu.RLock()
	w := r.writers[segment][short]
	r.mu.RUnlock()
	if w != nil {
		return w
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if w := r.writers[segment][short]; w != nil {
		return w
	}
	if r.writers[segment] == nil {
		r.writers[segment] = make(map[string]*JSONLWriter)
	}
	w = NewJSONLWriter(r.baseDir, segment, short, r.bufferSize, r.maxSizeMB)
	r.writers[segment][short] = w
	slog.Info("journal writer created", "segment", segment, "tab", short)
	return w
}

// Close closes every writer and forgets them.
func (r *WriterRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for segment, byTab := range r.writers {
		for tab, w := range byTab {
			if err := w.Close(); err != nil {
				slog.Error("journal writer close failed", "segment", segment, "tab", tab, "error", err)
				lastErr = err
			}
		}
	}
	r.writers = make(map[string]map[string]*JSONLWriter)
	return lastErr
}
