// Package logbroker implements the Log Broker (C7): per-job pub/sub over
// streamed playbook output, with partial/final persistence and
// gap-free catch-up for late-joining subscribers. The fan-out shape is
// adapted from the teacher's SSE hub (internal/sse in the reference
// backend), generalized from per-user channels to per-job topics and from
// HTTP/SSE delivery to a plain Go channel the server package adapts to
// WebSocket or SSE as it sees fit.
package logbroker

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ansiblecluster/core/internal/pkg/logger"
)

// Event is one delivery to a subscriber: either a content chunk or the
// terminal completion signal carrying the final filename.
type Event struct {
	JobID    string
	Content  []byte
	Final    bool
	Filename string
}

type Subscriber struct {
	ID       uuid.UUID
	JobID    string
	Outbound chan Event
	done     chan struct{}
}

// stop closes the subscriber's done channel; safe to call more than once.
func (s *Subscriber) stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

type Broker struct {
	mu            sync.Mutex
	log           *logger.Logger
	store         *FileStore
	subscriptions map[string]map[*Subscriber]bool
}

func New(log *logger.Logger, store *FileStore) *Broker {
	return &Broker{
		log:           log.With("component", "logbroker"),
		store:         store,
		subscriptions: make(map[string]map[*Subscriber]bool),
	}
}

// Subscribe atomically reads the job's current partial (or final, if the
// job already completed before the subscriber joined) artifact and
// registers the subscriber for subsequent chunks, so the caller is
// guaranteed the backlog delivered as the first event has no gap or
// overlap with anything streamed afterward (spec §4.7).
func (b *Broker) Subscribe(jobID string, finalFilename string) (*Subscriber, []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var backlog []byte
	var err error
	if finalFilename != "" {
		backlog, err = b.store.ReadFinal(finalFilename)
	} else {
		backlog, err = b.store.ReadPartial(jobID)
	}
	if err != nil {
		return nil, nil, err
	}

	sub := &Subscriber{
		ID:       uuid.New(),
		JobID:    jobID,
		Outbound: make(chan Event, 32),
		done:     make(chan struct{}),
	}
	set, ok := b.subscriptions[jobID]
	if !ok {
		set = make(map[*Subscriber]bool)
		b.subscriptions[jobID] = set
	}
	set[sub] = true
	return sub, backlog, nil
}

func (b *Broker) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subscriptions[sub.JobID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subscriptions, sub.JobID)
		}
	}
	sub.stop()
}

// StreamChunk persists and fans out one streamed chunk for a job. append
// mirrors the wire contract in spec §4.7: the first chunk for a job uses
// append=false, every subsequent chunk appends. The write and the fan-out
// happen under the same lock Subscribe reads its backlog under, so a
// subscriber that joins mid-call either sees the chunk in its backlog read
// or receives it live afterward, never both and never neither (spec §4.7's
// no-gap-no-overlap guarantee).
func (b *Broker) StreamChunk(jobID string, content []byte, appendFlag bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.store.WriteChunk(jobID, content, appendFlag); err != nil {
		return err
	}
	b.broadcastLocked(jobID, Event{JobID: jobID, Content: content})
	return nil
}

// Finalize renames the job's partial artifact to its terminal filename and
// notifies subscribers with a completion event carrying the full final
// content, then unregisters the topic (no further chunks are expected).
func (b *Broker) Finalize(jobID, filename string, explicitContent []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	content, err := b.store.Finalize(jobID, filename, explicitContent)
	if err != nil {
		return nil, err
	}
	b.broadcastLocked(jobID, Event{JobID: jobID, Content: content, Final: true, Filename: filename})
	delete(b.subscriptions, jobID)
	return content, nil
}

// broadcastLocked fans ev out to jobID's subscribers. Callers must hold b.mu.
func (b *Broker) broadcastLocked(jobID string, ev Event) {
	for sub := range b.subscriptions[jobID] {
		select {
		case sub.Outbound <- ev:
		default:
			b.log.Warn("dropping log event; subscriber outbound buffer full", "job_id", jobID, "subscriber_id", sub.ID)
		}
	}
}
