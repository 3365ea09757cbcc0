package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/workflow"
)

func TestEventBroadcaster_SendAndRemove(t *testing.T) {
	b := NewEventBroadcaster()
	ch := b.AddListener()

	b.Publish(workflow.SelectingMode{})

	select {
	case event := <-ch:
		if event.Type != workflow.WorkflowAttendance || event.Data.State != workflow.StateSelectingMode {
			t.Errorf("event = %+v", event)
		}
	default:
		t.Fatal("no event received")
	}

	b.RemoveListener(ch)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after RemoveListener")
	}
	if b.ListenerCount() != 0 {
		t.Errorf("ListenerCount() = %d, want 0", b.ListenerCount())
	}

	// Sending without listeners must not block.
	b.Publish(workflow.Idle{})
}

func TestEventBroadcaster_FullBufferDoesNotBlock(t *testing.T) {
	b := NewEventBroadcaster()
	ch := b.AddListener()
	defer b.RemoveListener(ch)

	done := make(chan struct{})
	go func() {
		for range cap(ch) + 10 {
			b.Publish(workflow.Idle{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SendEvent blocked on a full listener")
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered %d events, want %d", len(ch), cap(ch))
	}
}

type sseEvent struct {
	name string
	view workflow.View
}

func readSSEEvent(t *testing.T, scanner *bufio.Scanner) sseEvent {
	t.Helper()
	var ev sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.view); err != nil {
				t.Fatalf("bad event data %q: %v", line, err)
			}
		case line == "" && ev.name != "":
			return ev
		}
	}
	t.Fatalf("stream ended: %v", scanner.Err())
	return ev
}

func TestEventsHandler_Stream(t *testing.T) {
	f := newKioskFixture(t)
	events := NewEventsHandler(f.broadcaster, f.attendance, f.registration)
	server := httptest.NewServer(http.HandlerFunc(events.Stream))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	first := readSSEEvent(t, scanner)
	second := readSSEEvent(t, scanner)
	if first.name != "attendance" || first.view.State != workflow.StateIdle {
		t.Errorf("first event = %+v", first)
	}
	if second.name != "registration" || second.view.State != workflow.StateForm {
		t.Errorf("second event = %+v", second)
	}

	// The initial events are written after the listener is registered, so
	// this change cannot be missed.
	if _, err := f.attendance.SelectMode(attendance.PunchIn); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	change := readSSEEvent(t, scanner)
	if change.name != "attendance" || change.view.State != workflow.StateChallengeIssued {
		t.Errorf("change event = %+v", change)
	}
}

func TestEventsHandler_KeepAlive(t *testing.T) {
	f := newKioskFixture(t)
	events := NewEventsHandler(f.broadcaster, f.attendance, f.registration)
	events.keepAlive = 10 * time.Millisecond
	server := httptest.NewServer(http.HandlerFunc(events.Stream))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if scanner.Text() == ": keepalive" {
			return
		}
	}
	t.Fatal("no keepalive comment received")
}
