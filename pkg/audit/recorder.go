package audit

import (
	"context"
	"os"
	"os/user"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder stamps events with ids, the run id and the local actor, then
// hands them to a sink. Sink failures are logged and never returned. A nil
// Recorder discards everything.
type Recorder struct {
	sink   Sink
	runID  string
	actor  Actor
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	events int
}

func NewRecorder(runID string, sink Sink, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		sink:   sink,
		runID:  runID,
		actor:  LocalActor(),
		logger: logger,
		now:    time.Now,
	}
}

// LocalActor identifies the operating system user running flowctl.
func LocalActor() Actor {
	actor := Actor{User: "unknown"}
	if u, err := user.Current(); err == nil && u.Username != "" {
		actor.User = u.Username
	}
	if host, err := os.Hostname(); err == nil {
		actor.Host = host
	}
	return actor
}

// RunID returns the id shared by every event of this run.
func (r *Recorder) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

// Record emits an event. identity is the Salesforce user, if known.
func (r *Recorder) Record(ctx context.Context, eventType EventType, target Target, identity string, details map[string]any) {
	if r == nil || r.sink == nil {
		return
	}
	actor := r.actor
	actor.Identity = identity
	event := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Severity:  SeverityForEventType(eventType),
		Timestamp: r.now().UTC(),
		RunID:     r.runID,
		Actor:     actor,
		Target:    target,
		Details:   details,
	}
	r.mu.Lock()
	r.events++
	r.mu.Unlock()
	if err := r.sink.Write(ctx, event); err != nil {
		r.logger.Warn("Failed to record audit event",
			zap.String("event_type", string(eventType)),
			zap.String("sink", r.sink.Name()),
			zap.String("error", err.Error()))
	}
}

// Count is the number of events recorded so far.
func (r *Recorder) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events
}

func (r *Recorder) Close() error {
	if r == nil || r.sink == nil {
		return nil
	}
	return r.sink.Close()
}
