package storage

import (
	"log/slog"
	"time"

	"github.com/dgnsrekt/shotover_agent/internal/settings"
)

// ImportRecord is one journal line.
type ImportRecord struct {
	Time     time.Time `json:"time"`
	TabID    string    `json:"tab_id"`
	Page     string    `json:"page,omitempty"`
	Pass     int       `json:"pass"`
	Key      string    `json:"key"`
	Selector string    `json:"selector"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason,omitempty"`
	Value    any       `json:"value,omitempty"`
}

// Journal records import outcomes. A nil *Journal discards everything.
type Journal struct {
	reg *WriterRegistry
	now func() time.Time
}

func NewJournal(dir string, bufferSize, maxSizeMB int) *Journal {
	return &Journal{reg: NewWriterRegistry(dir, bufferSize, maxSizeMB), now: time.Now}
}

// Recorder returns an outcome callback bound to a tab, page and pass, for
// settings.Options.OnOutcome.
func (j *Journal) Recorder(tabID, page string, pass int) func(settings.Outcome) {
	if j == nil {
		return nil
	}
	w := j.reg.GetWriter(PageSegment(page), tabID)
	return func(o settings.Outcome) {
		err := w.Write(ImportRecord{
			Time:     j.now().UTC(),
			TabID:    tabID,
			Page:     page,
			Pass:     pass,
			Key:      o.Key,
			Selector: o.Selector,
			Status:   o.Status,
			Reason:   o.Reason,
			Value:    o.Value,
		})
		if err != nil {
			slog.Debug("journal record not written", "tab_id", tabID, "page", page, "key", o.Key, "error", err)
		}
	}
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.reg.Close()
}
