package marketplace

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Events are emitted after an operation's effects have committed. They are
// observability only; no consumer can influence a transition.

type Event interface {
	EventName() string
}

type AgentRegisteredEvent struct {
	Owner common.Address `json:"owner"`
	Name  string         `json:"name"`
}

func (e AgentRegisteredEvent) EventName() string { return "AgentRegistered" }

type AgentStatusChangedEvent struct {
	Owner  common.Address `json:"owner"`
	Active bool           `json:"active"`
}

func (e AgentStatusChangedEvent) EventName() string { return "AgentStatusChanged" }

type TaskCreatedEvent struct {
	TaskId  common.Hash    `json:"taskId"`
	Creator common.Address `json:"creator"`
	Budget  uint64         `json:"budget"`
}

func (e TaskCreatedEvent) EventName() string { return "TaskCreated" }

type TaskAcceptedEvent struct {
	TaskId common.Hash    `json:"taskId"`
	Agent  common.Address `json:"agent"`
}

func (e TaskAcceptedEvent) EventName() string { return "TaskAccepted" }

type ResultSubmittedEvent struct {
	TaskId    common.Hash `json:"taskId"`
	ResultURI string      `json:"resultUri"`
}

func (e ResultSubmittedEvent) EventName() string { return "ResultSubmitted" }

type TaskApprovedEvent struct {
	TaskId common.Hash    `json:"taskId"`
	Agent  common.Address `json:"agent"`
	Payout uint64         `json:"payout"`
}

func (e TaskApprovedEvent) EventName() string { return "TaskApproved" }

type TaskExpiredEvent struct {
	TaskId   common.Hash    `json:"taskId"`
	Creator  common.Address `json:"creator"`
	Refunded uint64         `json:"refunded"`
}

func (e TaskExpiredEvent) EventName() string { return "TaskExpired" }

// EventSink receives committed events.
type EventSink interface {
	Emit(event Event)
}

// LogEventSink writes events as structured log lines.
type LogEventSink struct {
	logger *zap.Logger
}

func NewLogEventSink(logger *zap.Logger) *LogEventSink {
	return &LogEventSink{logger: logger}
}

func (s *LogEventSink) Emit(event Event) {
	s.logger.Sugar().Infow("event emitted",
		"event", event.EventName(),
		"payload", event,
	)
}

// CaptureEventSink records events for assertions in tests.
type CaptureEventSink struct {
	mu     sync.Mutex
	events []Event
}

func NewCaptureEventSink() *CaptureEventSink {
	return &CaptureEventSink{}
}

func (s *CaptureEventSink) Emit(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *CaptureEventSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
