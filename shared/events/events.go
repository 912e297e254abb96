package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"
)

// EventType is the lifecycle transition carried by a UserLifecycleEvent.
type EventType string

const (
	UserCreated EventType = "USER_CREATED"
	UserDeleted EventType = "USER_DELETED"
)

// DefaultTopic is the topic both services use unless configured otherwise.
const DefaultTopic = "user-events"

var (
	// ErrTransport marks a failure to hand a message to, or read it from, the broker.
	ErrTransport = errors.New("event transport failure")
	// ErrMalformedEvent marks a payload that can never be decoded, no matter how often it is redelivered.
	ErrMalformedEvent = errors.New("malformed event")
)

// ParseEventType reports whether s names a known event type.
func ParseEventType(s string) (EventType, bool) {
	switch t := EventType(s); t {
	case UserCreated, UserDeleted:
		return t, true
	default:
		return t, false
	}
}

func (t EventType) String() string { return string(t) }

// UserLifecycleEvent is the wire contract between user-service and notification-service.
// Fields after Name are additive and optional; consumers must tolerate their absence.
type UserLifecycleEvent struct {
	EventType     EventType  `json:"eventType"`
	Email         string     `json:"email"`
	UserID        int64      `json:"userId"`
	Name          string     `json:"name"`
	OccurredAt    *time.Time `json:"occurredAt,omitempty"`
	CorrelationID string     `json:"correlationId,omitempty"`
}

// NewUserLifecycleEvent snapshots the given user fields into an event.
func NewUserLifecycleEvent(eventType EventType, userID int64, email, name string) UserLifecycleEvent {
	now := time.Now().UTC()
	return UserLifecycleEvent{
		EventType:  eventType,
		Email:      email,
		UserID:     userID,
		Name:       name,
		OccurredAt: &now,
	}
}

// Key is the partition key: the user id as a decimal string.
func (e UserLifecycleEvent) Key() string {
	return strconv.FormatInt(e.UserID, 10)
}

// Encode serializes the event for the broker.
func Encode(e UserLifecycleEvent) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// Decode parses a broker payload. Unknown event types decode successfully;
// deciding what to do with them is the dispatcher's job.
func Decode(data []byte) (UserLifecycleEvent, error) {
	var e UserLifecycleEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return UserLifecycleEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if e.EventType == "" {
		return UserLifecycleEvent{}, fmt.Errorf("%w: missing eventType", ErrMalformedEvent)
	}
	if e.UserID == 0 {
		return UserLifecycleEvent{}, fmt.Errorf("%w: missing userId", ErrMalformedEvent)
	}
	return e, nil
}

type correlationKey struct{}

// ContextWithCorrelationID attaches the request correlation id to ctx so that
// transports can stamp it on outgoing messages.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the id set by ContextWithCorrelationID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// Message is a single broker delivery, independent of transport.
type Message struct {
	ID      string
	Stream  string
	Key     string
	Payload []byte
}

// Partition maps a key onto one of n partitions.
func Partition(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// StreamName returns the stream backing partition p of topic.
// A single-partition topic is stored under the bare topic name.
func StreamName(topic string, p, partitions int) string {
	if partitions <= 1 {
		return topic
	}
	return fmt.Sprintf("%s.%d", topic, p)
}

// StreamFor returns the stream a message with the given key is published to.
func StreamFor(topic, key string, partitions int) string {
	return StreamName(topic, Partition(key, partitions), partitions)
}

// StreamsFor lists the streams for the given partitions; nil means all of them.
func StreamsFor(topic string, partitions int, owned []int) []string {
	if partitions <= 1 {
		return []string{topic}
	}
	if len(owned) == 0 {
		owned = make([]int, partitions)
		for i := range owned {
			owned[i] = i
		}
	}
	streams := make([]string, 0, len(owned))
	for _, p := range owned {
		streams = append(streams, StreamName(topic, p, partitions))
	}
	return streams
}
