package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loykin/crawlpost/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var receivedBody []byte
	var receivedURL, receivedMethod, contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedURL = r.URL.Path
		contentType = r.Header.Get("Content-Type")
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "crawlpost-history")
	event := history.Event{
		Kind:       history.KindLogin,
		Type:       history.EventFinished,
		OccurredAt: time.Now().UTC(),
		Record:     history.Record{Name: "account_ab12cd34", SessionID: "s-1", Platform: "xiaohongshu", Status: "success"},
	}
	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if receivedMethod != http.MethodPost {
		t.Errorf("Expected POST method, got: %s", receivedMethod)
	}
	if receivedURL != "/crawlpost-history/_doc" {
		t.Errorf("Unexpected URL path: %s", receivedURL)
	}
	if contentType != "application/json" {
		t.Errorf("Unexpected content type: %s", contentType)
	}

	var got map[string]any
	if err := json.Unmarshal(receivedBody, &got); err != nil {
		t.Fatalf("Failed to parse received JSON: %v", err)
	}
	if got["kind"] != "login" || got["type"] != "finished" {
		t.Errorf("Unexpected kind/type: %v/%v", got["kind"], got["type"])
	}
	record, ok := got["record"].(map[string]any)
	if !ok {
		t.Fatalf("Expected record in event, got: %v", got)
	}
	if record["session_id"] != "s-1" || record["status"] != "success" {
		t.Errorf("Unexpected record: %v", record)
	}
	if _, ok := record["pid"]; ok {
		t.Errorf("zero pid should be omitted: %v", record)
	}
}

func TestOpenSearchSink_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := New(server.URL, "idx").Send(context.Background(), history.Event{Kind: history.KindCrawler, Type: history.EventStart})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "opensearch sink status 400") {
		t.Errorf("Expected status error message, got: %v", err)
	}
}

func TestOpenSearchSink_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	if err := New(url, "idx").Send(context.Background(), history.Event{}); err == nil {
		t.Fatal("expected connection error")
	}
}
