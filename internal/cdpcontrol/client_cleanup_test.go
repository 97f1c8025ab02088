package cdpcontrol

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/chromedp/cdproto/target"
)

func TestCleanupLockedLogsDetachFailure(t *testing.T) {
	var buf bytes.Buffer
	oldLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() {
		slog.SetDefault(oldLogger)
	})

	client := NewClient("http://127.0.0.1:9222", "", 0)
	client.cdp = newRawCDP("http://127.0.0.1:9222")
	client.tabs[target.ID("tab-1")] = &tabSession{sessionID: "session-1", watching: true}
	client.sessionToTab["session-1"] = "tab-1"

	client.cleanupLocked()

	if !strings.Contains(buf.String(), "detach cleanup failed") {
		t.Fatalf("expected detach cleanup debug log, got %q", buf.String())
	}
	if client.cdp != nil {
		t.Fatal("cleanupLocked() left the CDP connection set")
	}
	if len(client.tabs) != 0 || len(client.sessionToTab) != 0 {
		t.Fatalf("cleanupLocked() left tabs=%d sessions=%d", len(client.tabs), len(client.sessionToTab))
	}
}

func TestDropSessionForgetsSessionMapping(t *testing.T) {
	client := NewClient("http://127.0.0.1:9222", "", 0)
	session := &tabSession{sessionID: "session-9", watching: true}
	client.sessionToTab["session-9"] = "tab-9"

	client.dropSession(session)

	if session.sessionID != "" || session.watching {
		t.Fatalf("dropSession() left session=%q watching=%v", session.sessionID, session.watching)
	}
	if _, ok := client.tabForSession("session-9"); ok {
		t.Fatal("tabForSession() still resolves a dropped session")
	}
}
