// Package events fans submission lifecycle events out to Redis pub/sub and NATS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Type names a lifecycle transition.
type Type string

const (
	// SubmissionStarted is published when a student starts an exam clock.
	SubmissionStarted Type = "submission.started"
	// SubmissionSubmitted is published when a file is handed in, on time or late.
	SubmissionSubmitted Type = "submission.submitted"
	// SubmissionUnsubmitted is published when a student withdraws a handed-in file.
	SubmissionUnsubmitted Type = "submission.unsubmitted"
	// SubmissionGraded is published on every grade write.
	SubmissionGraded Type = "submission.graded"
	// SubmissionAutoClosed is published when an untouched draft is closed after its deadline.
	SubmissionAutoClosed Type = "submission.auto_closed"
)

// Event is the payload published for every accepted transition.
type Event struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	AssignmentID uint      `json:"assignment_id"`
	SubmissionID uint      `json:"submission_id"`
	StudentID    uint      `json:"student_id"`
	ActorID      uint      `json:"actor_id,omitempty"`
	Status       string    `json:"status"`
	IsLate       bool      `json:"is_late"`
	OccurredAt   time.Time `json:"occurred_at"`
	Source       string    `json:"source"`
}

// Publisher delivers lifecycle events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Bus publishes to whichever transports are configured.
type Bus struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger
}

// NewBus builds a bus. Either client may be nil; channelBase namespaces the
// Redis channel ("<base>:submissions") and NATS subject ("<base>.submissions.<type>").
func NewBus(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *Bus {
	base := strings.TrimSpace(channelBase)
	if base == "" {
		base = "classroom"
	}

	return &Bus{
		redis:        redisClient,
		redisChannel: base + ":submissions",
		nats:         natsConn,
		natsSubject:  strings.ReplaceAll(base, ":", ".") + ".submissions",
		nodeID:       uuid.NewString(),
		logger:       logger.With().Str("component", "event_bus").Logger(),
	}
}

// RedisChannel returns the pub/sub channel events are published on.
func (b *Bus) RedisChannel() string {
	return b.redisChannel
}

// NATSSubject returns the subject used for the given event type.
func (b *Bus) NATSSubject(eventType Type) string {
	return b.natsSubject + "." + strings.TrimPrefix(string(eventType), "submission.")
}

// Publish implements Publisher. Failures on one transport do not stop the other.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	event.Source = b.nodeID

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	var errs []error
	if b.redis != nil {
		if err := b.redis.Publish(ctx, b.redisChannel, payload).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis publish: %w", err))
		}
	}
	if b.nats != nil {
		if err := b.nats.Publish(b.NATSSubject(event.Type), payload); err != nil {
			errs = append(errs, fmt.Errorf("nats publish: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	b.logger.Debug().Str("event", string(event.Type)).Uint("submission_id", event.SubmissionID).Msg("event published")
	return nil
}

// ConnectNATS dials the NATS server when a URL is configured.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	if strings.TrimSpace(url) == "" {
		return nil, nil
	}

	conn, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1), nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return conn, nil
}
