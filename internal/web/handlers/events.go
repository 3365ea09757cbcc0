package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/faceauth-station/internal/constants"
	"github.com/kozaktomas/faceauth-station/internal/workflow"
)

// StateEvent is a workflow state change pushed to event stream listeners.
// Type is the workflow name ("attendance" or "registration").
type StateEvent struct {
	Type string        `json:"type"`
	Data workflow.View `json:"data"`
}

// EventBroadcaster fans workflow state changes out to SSE listeners.
type EventBroadcaster struct {
	listeners []chan StateEvent
	mu        sync.RWMutex
}

// NewEventBroadcaster creates a broadcaster without listeners.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{}
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan StateEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan StateEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener and closes its channel.
func (b *EventBroadcaster) RemoveListener(ch chan StateEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event StateEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Publish broadcasts a workflow state. It matches workflow.Options.OnChange.
func (b *EventBroadcaster) Publish(s workflow.State) {
	view := workflow.Describe(s)
	b.SendEvent(StateEvent{Type: view.Workflow, Data: view})
}

// ListenerCount returns the number of connected listeners.
func (b *EventBroadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// EventsHandler streams kiosk state changes as server-sent events.
type EventsHandler struct {
	broadcaster  *EventBroadcaster
	attendance   *workflow.Attendance
	registration *workflow.Registration
	keepAlive    time.Duration
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(b *EventBroadcaster, a *workflow.Attendance, r *workflow.Registration) *EventsHandler {
	return &EventsHandler{
		broadcaster:  b,
		attendance:   a,
		registration: r,
		keepAlive:    constants.SSEKeepAliveInterval,
	}
}

// Stream sends the current state of both workflows, then every change
// until the client disconnects.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventCh := h.broadcaster.AddListener()
	defer h.broadcaster.RemoveListener(eventCh)

	sendSSEEvent(w, flusher, workflow.WorkflowAttendance, workflow.Describe(h.attendance.State()))
	sendSSEEvent(w, flusher, workflow.WorkflowRegistration, workflow.Describe(h.registration.State()))

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": keepalive\n\n")
			flusher.Flush()
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event.Data)
		}
	}
}

// sendSSEEvent writes one named event with a JSON payload and flushes it.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
