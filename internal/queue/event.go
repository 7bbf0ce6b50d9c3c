package queue

import (
	"time"

	"github.com/google/uuid"
)

// Queue instance names. Both queues share the same structure and worker
// pattern; only the applier differs.
const (
	VoteQueue    = "votes"
	CommentQueue = "comments"
)

// Action tags the variant of a queued mutation.
type Action string

const (
	ActionVoteCast      Action = "vote.cast"
	ActionVoteRevoke    Action = "vote.revoke"
	ActionCommentCreate Action = "comment.create"
	ActionCommentLike   Action = "comment.like"
	ActionCommentUnlike Action = "comment.unlike"
	ActionCommentDelete Action = "comment.delete"
)

// Payload carries the action-specific fields. Unused fields stay empty on
// the wire (omitempty), so vote events don't drag comment baggage around.
type Payload struct {
	Weight   int64  `json:"weight,omitempty"`
	ClipID   string `json:"clip_id,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
	Body     string `json:"body,omitempty"`
}

// Event is the unit of work pushed onto a queue. EventID is the
// idempotency key: re-delivery of the same id must be a no-op downstream.
type Event struct {
	EventID   string         `json:"event_id"`
	EntityID  string         `json:"entity_id"`
	ActorKey  string         `json:"actor_key"`
	Action    Action         `json:"action"`
	Payload   Payload        `json:"payload"`
	Timestamp time.Time      `json:"ts"`
	Meta      map[string]any `json:"meta,omitempty"`

	// raw holds the serialization this event was popped with. Acknowledge
	// LREMs that exact string: meta is a map and does not re-marshal
	// deterministically, so the bytes must be retained, not rebuilt.
	raw string
}

// NewEvent mints an event with a fresh id and the current timestamp.
func NewEvent(action Action, entityID, actorKey string, payload Payload) Event {
	return Event{
		EventID:   uuid.New().String(),
		EntityID:  entityID,
		ActorKey:  actorKey,
		Action:    action,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

const (
	metaRetryCount    = "retry_count"
	metaFirstFailedAt = "first_failed_at"
)

// RetryCount reports how many times this event has failed so far.
func (e *Event) RetryCount() int {
	if e.Meta == nil {
		return 0
	}
	switch v := e.Meta[metaRetryCount].(type) {
	case float64: // json round-trip
		return int(v)
	case int:
		return v
	}
	return 0
}

// SetRetryCount records a new attempt count in the open metadata map.
func (e *Event) SetRetryCount(n int) {
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	e.Meta[metaRetryCount] = n
}

// MarkFailed stamps the first-failure time once; later failures keep it.
func (e *Event) MarkFailed(at time.Time) {
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	if _, ok := e.Meta[metaFirstFailedAt]; !ok {
		e.Meta[metaFirstFailedAt] = at.UTC().Format(time.RFC3339Nano)
	}
}

// FirstFailedAt returns the recorded first-failure time, if any.
func (e *Event) FirstFailedAt() (time.Time, bool) {
	if e.Meta == nil {
		return time.Time{}, false
	}
	s, ok := e.Meta[metaFirstFailedAt].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DeadLetterEntry wraps an event that exhausted its retry budget. Terminal:
// written once, only read afterwards (manual replay is an operator action).
type DeadLetterEntry struct {
	Event         Event     `json:"event"`
	Error         string    `json:"error"`
	Attempts      int       `json:"attempts"`
	FirstFailedAt time.Time `json:"first_failed_at"`
	LastFailedAt  time.Time `json:"last_failed_at"`
	// Raw preserves the original list entry when it could not even be
	// decoded (poison payload); empty for ordinary dead letters.
	Raw string `json:"raw,omitempty"`
}
