// Package events provides the typed event bus for analysis lifecycle
// notifications. Producers publish typed payloads; the SSE stream handler
// and any in-process subscriber fan them out.
package events

import (
	"sync"
	"time"
)

// EventType identifies one kind of system event.
type EventType string

const (
	AnalysisQueued    EventType = "analysis_queued"
	AnalysisStarted   EventType = "analysis_started"
	AnalysisCompleted EventType = "analysis_completed"
	AnalysisFailed    EventType = "analysis_failed"
	BackupCompleted   EventType = "backup_completed"
)

// EventData is the interface that all event payload types implement.
// It keeps publishing type-safe while the bus stays generic.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// Event is a published event with its payload and timestamp.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data,omitempty"`
}

// AnalysisQueuedData contains data for AnalysisQueued events.
type AnalysisQueuedData struct {
	QueueID  int64  `json:"queue_id"`
	Sequence string `json:"sequence"`
}

// EventType returns the event type for AnalysisQueuedData.
func (d *AnalysisQueuedData) EventType() EventType {
	return AnalysisQueued
}

// AnalysisStartedData contains data for AnalysisStarted events.
type AnalysisStartedData struct {
	Sequence string `json:"sequence"`
	Seed     int64  `json:"seed"`
}

// EventType returns the event type for AnalysisStartedData.
func (d *AnalysisStartedData) EventType() EventType {
	return AnalysisStarted
}

// AnalysisCompletedData contains data for AnalysisCompleted events.
type AnalysisCompletedData struct {
	RunID    string  `json:"run_id"`
	Sequence string  `json:"sequence"`
	FoTValue float64 `json:"fot_value"`
	Warnings int     `json:"warnings"`
}

// EventType returns the event type for AnalysisCompletedData.
func (d *AnalysisCompletedData) EventType() EventType {
	return AnalysisCompleted
}

// AnalysisFailedData contains data for AnalysisFailed events.
type AnalysisFailedData struct {
	Sequence string `json:"sequence"`
	Error    string `json:"error"`
}

// EventType returns the event type for AnalysisFailedData.
func (d *AnalysisFailedData) EventType() EventType {
	return AnalysisFailed
}

// BackupCompletedData contains data for BackupCompleted events.
type BackupCompletedData struct {
	Archive   string `json:"archive"`
	SizeBytes int64  `json:"size_bytes"`
}

// EventType returns the event type for BackupCompletedData.
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// Bus is a simple fan-out event bus. Subscribers get buffered channels;
// slow subscribers drop events rather than block publishers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[int]chan Event)}
}

// Subscribe registers a subscriber. The returned cancel function must be
// called to release the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, 32)
	b.subscribers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the payload to all current subscribers.
func (b *Bus) Publish(data EventData) {
	event := Event{
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full; drop rather than block the pipeline.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
