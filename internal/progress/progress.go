// Package progress publishes one event per plan position a learning run
// processes, the same lightweight NATS-core pattern eventbus.NATSBus uses,
// adapted to the learning driver's own event shape.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Default subject for learning-run progress events.
const DefaultSubject = "htnlearn.events.learning"

// EventType names the stage of a learning run an Event reports.
type EventType string

const (
	// EventPositionStart fires before the driver attempts to learn a
	// method at a given plan position.
	EventPositionStart EventType = "position_start"
	// EventMethodLearned fires when a new method is added to the domain.
	EventMethodLearned EventType = "method_learned"
	// EventMethodSubsumed names a candidate method dropped as redundant
	// with one already in the domain; Driver.Run does not publish it.
	EventMethodSubsumed EventType = "method_subsumed"
	// EventRunComplete fires once, at the end of Driver.Run.
	EventRunComplete EventType = "run_complete"
)

// Event is the envelope published for every stage of a learning run.
type Event struct {
	EventID   string    `json:"event_id"`
	RunID     string    `json:"run_id,omitempty"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Domain    string    `json:"domain"`
	TaskHead  string    `json:"task_head,omitempty"`
	MethodID  string    `json:"method_id,omitempty"`
	Position  int       `json:"position,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// MinimalValidate reports whether e carries the fields every consumer
// depends on.
func (e *Event) MinimalValidate() bool {
	return e.EventID != "" && e.Type != "" && !e.Timestamp.IsZero() && e.Domain != ""
}

// NewEventID generates a date-prefixed, collision-resistant id, the same
// uuid.New().String() convention planner_evaluator/planner.go uses for
// Plan and Episode ids.
func NewEventID(prefix string, t time.Time) string {
	return prefix + t.UTC().Format("20060102") + "_" + uuid.New().String()
}

// Config configures a Bus connection.
type Config struct {
	URL     string
	Subject string
}

// Bus publishes learning-run progress events over a NATS core subject.
// Nil-safe: a Bus obtained from a failed Connect, or a zero-value Bus, is
// a no-op publisher, so callers can wire progress reporting optionally
// without littering nil checks through the learning driver.
type Bus struct {
	nc      *nats.Conn
	subject string
}

// Connect dials the NATS server at cfg.URL (nats.DefaultURL if empty) and
// returns a Bus publishing to cfg.Subject (DefaultSubject if empty).
func Connect(cfg Config) (*Bus, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("htnlearn-progress"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	return &Bus{nc: nc, subject: subject}, nil
}

// Close closes the underlying connection. Safe to call on a nil Bus.
func (b *Bus) Close() {
	if b == nil || b.nc == nil {
		return
	}
	b.nc.Close()
}

// Publish sends evt on the bus. Safe to call on a nil Bus (a no-op),
// so a caller that failed to Connect can still pass a *Bus around.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	if b == nil || b.nc == nil {
		return nil
	}
	if !evt.MinimalValidate() {
		return fmt.Errorf("progress: invalid event: missing required fields")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, data)
}

// Subscribe registers handler for every event published on the bus,
// draining the subscription when ctx is done.
func (b *Bus) Subscribe(ctx context.Context, handler func(Event)) (*nats.Subscription, error) {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		var evt Event
		if err := json.Unmarshal(msg.Data, &evt); err == nil {
			handler(evt)
		}
	})
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()
	return sub, nil
}
