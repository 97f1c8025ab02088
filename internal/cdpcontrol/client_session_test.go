package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// newFakeBrowser serves /json/version and a browser socket that answers
// Runtime.evaluate according to the expression: "hang" never replies,
// "throw" reports a page exception and "detached" reports a lost session.
func newFakeBrowser(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"webSocketDebuggerUrl": "ws://" + r.Host + "/devtools/browser",
		})
	})
	mux.HandleFunc("/devtools/browser", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			data, err := wsutil.ReadClientText(conn)
			if err != nil {
				return
			}
			var req struct {
				ID     int64 `json:"id"`
				Params struct {
					Expression string `json:"expression"`
				} `json:"params"`
			}
			if json.Unmarshal(data, &req) != nil {
				continue
			}
			var reply string
			switch expr := req.Params.Expression; {
			case strings.Contains(expr, "hang"):
				continue
			case strings.Contains(expr, "throw"):
				reply = fmt.Sprintf(`{"id":%d,"result":{"result":{"type":"object"},"exceptionDetails":{"text":"Uncaught TypeError"}}}`, req.ID)
			case strings.Contains(expr, "detached"):
				reply = fmt.Sprintf(`{"id":%d,"error":{"code":-32001,"message":"Session with given id not found."}}`, req.ID)
			default:
				reply = fmt.Sprintf(`{"id":%d,"result":{"result":{"type":"string","value":"{\"ok\":true}"}}}`, req.ID)
			}
			if err := wsutil.WriteServerText(conn, []byte(reply)); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEvalKeepsSessionUnlessSessionLost(t *testing.T) {
	tests := []struct {
		name     string
		js       string
		wantCode string
		wantKept bool
	}{
		{name: "success", js: "ok()", wantKept: true},
		{name: "timeout", js: "hang()", wantCode: CodeEvalTimeout, wantKept: true},
		{name: "page exception", js: "throw()", wantCode: CodeEvalFailure, wantKept: true},
		{name: "session lost", js: "detached()", wantCode: CodeEvalFailure, wantKept: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeBrowser(t)
			client := NewClient(srv.URL, "", 200*time.Millisecond)
			client.cdp = newRawCDP(srv.URL)
			if err := client.cdp.connect(context.Background()); err != nil {
				t.Fatalf("connect: %v", err)
			}
			t.Cleanup(client.cdp.close)

			session := &tabSession{sessionID: "session-1"}
			client.tabs[target.ID("tab-1")] = session
			client.sessionToTab["session-1"] = "tab-1"

			err := client.evalOnSession(context.Background(), session, "tab-1", tt.js, nil)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("evalOnSession() error = %v", err)
				}
			} else {
				var coded *CodedError
				if !errors.As(err, &coded) || coded.Code != tt.wantCode {
					t.Fatalf("evalOnSession() error = %v; want code %s", err, tt.wantCode)
				}
			}

			_, mapped := client.sessionToTab["session-1"]
			kept := session.sessionID == "session-1" && mapped
			if kept != tt.wantKept {
				t.Fatalf("session kept = %v (id %q, mapped %v); want %v", kept, session.sessionID, mapped, tt.wantKept)
			}
		})
	}
}

func TestSessionGone(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"page exception", errors.New("rawcdp: eval exception: Uncaught TypeError"), false},
		{"deadline", context.DeadlineExceeded, false},
		{"missing session", errors.New("rawcdp: Runtime.evaluate: Session with given id not found."), true},
		{"no session", errors.New("rawcdp: Runtime.evaluate: No session with given id"), true},
		{"socket closed", errors.New("rawcdp: connection closed"), true},
		{"never connected", errors.New("rawcdp: not connected"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sessionGone(tt.err); got != tt.want {
				t.Fatalf("sessionGone(%v) = %v; want %v", tt.err, got, tt.want)
			}
		})
	}
}
