package readability

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Concurrency in Go</title></head>
<body>
<nav>home | about | contact</nav>
<article>
<h1>Concurrency in Go</h1>
<p>Goroutines are lightweight threads managed by the Go runtime. They make
it practical to structure a program as a set of independently executing
activities that communicate over channels.</p>
<p>Channels carry values between goroutines. A send blocks until a receiver
is ready, which is what makes unbuffered channels a synchronization point
and not just a queue.</p>
<p>The select statement lets a goroutine wait on multiple channel operations
at once, proceeding with whichever is ready first.</p>
</article>
<footer>copyright</footer>
</body>
</html>`

func TestClient_Extract(t *testing.T) {
	var gotBody []byte
	var gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotBody, _ = io.ReadAll(r.Body)
		gotURL = r.Header.Get("X-Document-URL")
		_ = json.NewEncoder(w).Encode(Result{
			Title:       "Concurrency in Go",
			Content:     "<p>Goroutines are lightweight threads.</p>",
			TextContent: "Goroutines are lightweight threads.",
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	got, err := client.Extract(context.Background(), "https://example.com/go", []byte(samplePage))
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if got.Title != "Concurrency in Go" {
		t.Errorf("Title = %q, want %q", got.Title, "Concurrency in Go")
	}
	if string(gotBody) != samplePage {
		t.Error("service did not receive the raw HTML body")
	}
	if gotURL != "https://example.com/go" {
		t.Errorf("X-Document-URL = %q, want the page URL", gotURL)
	}
}

func TestClient_Extract_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	_, err = client.Extract(context.Background(), "", []byte(samplePage))
	if err == nil {
		t.Fatal("Extract() expected error on 500, got nil")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error %q missing status code", err)
	}
}

func TestClient_Extract_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Result{})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	if _, err := client.Extract(context.Background(), "", []byte(samplePage)); err == nil {
		t.Error("Extract() expected error on empty result, got nil")
	}
}

func TestClient_Extract_EmptyHTML(t *testing.T) {
	client, err := NewClient("http://localhost:0")
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	if _, err := client.Extract(context.Background(), "", nil); err == nil {
		t.Error("Extract(nil) expected error, got nil")
	}
}

func TestLocal_Extract(t *testing.T) {
	local := NewLocal()
	got, err := local.Extract(context.Background(), "https://example.com/go", []byte(samplePage))
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if got.Title != "Concurrency in Go" {
		t.Errorf("Title = %q, want %q", got.Title, "Concurrency in Go")
	}
	if !strings.Contains(got.TextContent, "Goroutines are lightweight threads") {
		t.Error("TextContent missing the article body")
	}
	if strings.Contains(got.TextContent, "home | about | contact") {
		t.Error("TextContent should not contain navigation chrome")
	}
}

func TestLocal_Extract_EmptyHTML(t *testing.T) {
	if _, err := NewLocal().Extract(context.Background(), "", nil); err == nil {
		t.Error("Extract(nil) expected error, got nil")
	}
}
