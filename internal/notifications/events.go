package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"

	"feedhub/internal/async"
	"feedhub/internal/models"
	"feedhub/internal/observability"
)

// Mutation actions carried in the event payload.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// EventType is the envelope type of every feed event.
const EventType = "posts"

var (
	ErrAlreadyStarted = errors.New("event bus already started")
	ErrNotStarted     = errors.New("event bus used before Start")
)

// MutationEvent describes one committed post change.
type MutationEvent struct {
	Action string       `json:"action"`
	Post   *models.Post `json:"post,omitempty"`
	PostID string       `json:"postId"`
}

// Envelope is the wire format sent to subscribers.
type Envelope struct {
	Type    string        `json:"type"`
	Payload MutationEvent `json:"payload"`
}

// NewMutationEvent builds an event for post. post may be nil for deletes.
func NewMutationEvent(action string, postID uint, post *models.Post) MutationEvent {
	return MutationEvent{Action: action, Post: post, PostID: strconv.FormatUint(uint64(postID), 10)}
}

// EventBus delivers mutation events to every subscriber of the hub, either
// directly or through Redis when a notifier is enabled.
type EventBus struct {
	hub      *Hub
	notifier *Notifier
	tasks    *async.Runner

	mu      sync.RWMutex
	started bool
	cancel  context.CancelFunc
}

// NewEventBus wires a bus. It delivers nothing until Start is called.
func NewEventBus(hub *Hub, notifier *Notifier, tasks *async.Runner) *EventBus {
	if tasks == nil {
		tasks = async.NewRunner()
	}
	return &EventBus{hub: hub, notifier: notifier, tasks: tasks}
}

// Start initializes the bus. It may be called once.
func (b *EventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return ErrAlreadyStarted
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if b.notifier.Enabled() {
		if err := b.notifier.Subscribe(subCtx, b.hub.BroadcastAll); err != nil {
			cancel()
			return err
		}
	}
	b.cancel = cancel
	b.started = true
	observability.L().InfoContext(ctx, "event bus started", "redis", b.notifier.Enabled())
	return nil
}

// Started reports whether Start has succeeded.
func (b *EventBus) Started() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.started
}

// Broadcast sends ev to all subscribers. Calling it before Start panics.
func (b *EventBus) Broadcast(ctx context.Context, ev MutationEvent) {
	if !b.Started() {
		panic(ErrNotStarted)
	}

	data, err := json.Marshal(Envelope{Type: EventType, Payload: ev})
	if err != nil {
		observability.L().ErrorContext(ctx, "failed to encode event", "action", ev.Action, "error", err.Error())
		return
	}
	payload := string(data)

	if !b.notifier.Enabled() {
		observability.EventsBroadcast.WithLabelValues("local").Inc()
		b.hub.BroadcastAll(payload)
		return
	}

	observability.EventsBroadcast.WithLabelValues("redis").Inc()
	b.tasks.Go(ctx, "events.publish", map[string]interface{}{"action": ev.Action, "post_id": ev.PostID}, func(ctx context.Context) error {
		return b.notifier.Publish(ctx, payload)
	})
}

// Shutdown stops the Redis subscription and closes all subscribers.
func (b *EventBus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Unlock()
	return b.hub.Shutdown(ctx)
}
