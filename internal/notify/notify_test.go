package notify

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func okResponse() *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
		Header:     make(http.Header),
	}
}

func TestNotifyPostsMessageWithTitle(t *testing.T) {
	var method, path, body, contentType, title string
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			method = r.Method
			path = r.URL.Path
			contentType = r.Header.Get("Content-Type")
			title = r.Header.Get("Title")
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			body = string(raw)
			return okResponse(), nil
		}),
	}

	New("http://example.com/shotover", client).Notify(context.Background(), "Load all pages", "7 pages loaded")

	if method != http.MethodPost {
		t.Fatalf("method = %q; want POST", method)
	}
	if path != "/shotover" {
		t.Fatalf("path = %q; want /shotover", path)
	}
	if contentType != "text/plain" {
		t.Fatalf("content-type = %q; want text/plain", contentType)
	}
	if title != "Load all pages" {
		t.Fatalf("title = %q", title)
	}
	if body != "7 pages loaded" {
		t.Fatalf("body = %q", body)
	}
}

func TestNotifyWithoutEndpointIsNoop(t *testing.T) {
	called := false
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		called = true
		return okResponse(), nil
	})}

	New("  ", client).Notify(context.Background(), "", "x")
	var n *Notifier
	n.Notify(context.Background(), "", "x")

	if called {
		t.Fatal("notifier without endpoint sent a request")
	}
}

func TestNotifyLogsServerError(t *testing.T) {
	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(strings.NewReader("server failure")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	var buf bytes.Buffer
	oldLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(oldLogger) })

	New("http://example.com/n", client).Notify(context.Background(), "", "x")

	if !strings.Contains(buf.String(), "status=500") {
		t.Fatalf("log = %q; want status=500", buf.String())
	}
}

func TestSendDisallowsMissingEndpoint(t *testing.T) {
	if err := Send(context.Background(), http.DefaultClient, "", "x"); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}
