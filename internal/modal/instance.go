package modal

import "time"

type Actor struct {
	ID  string `json:"id"`
	Tag string `json:"tag"`
}

func (a Actor) Mention() string {
	return "<@" + a.ID + ">"
}

// WorkflowInstance is the query-visible state of one conversational run.
type WorkflowInstance struct {
	WorkflowID string            `json:"workflowId"`
	Kind       WorkflowKind      `json:"kind"`
	Initiator  Actor             `json:"initiator"`
	Subject    *Actor            `json:"subject,omitempty"`
	ChannelID  string            `json:"channelId,omitempty"`
	Steps      map[string]string `json:"steps"`
	Status     InstanceStatus    `json:"status"`
	State      InstanceState     `json:"state"`
	DeadlineAt time.Time         `json:"deadlineAt,omitempty"`
	Reason     FailureReason     `json:"reason,omitempty"`
}

type AuditEvent struct {
	At      time.Time      `json:"at"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

type EventKind string

const (
	EventMessage EventKind = "message"
	EventChoice  EventKind = "choice"
)

// PromptEvent is an inbound reply or UI choice routed to a waiting workflow.
type PromptEvent struct {
	Kind        EventKind `json:"kind"`
	AuthorID    string    `json:"authorId"`
	ChannelID   string    `json:"channelId"`
	Content     string    `json:"content,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
	Option      string    `json:"option,omitempty"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

// Outcome is the result every workflow run returns: exactly one terminal status.
type Outcome struct {
	Status            InstanceStatus `json:"status"`
	Reason            FailureReason  `json:"reason,omitempty"`
	ActionID          string         `json:"actionId,omitempty"`
	CommissionID      string         `json:"commissionId,omitempty"`
	Message           string         `json:"message"`
	PersistenceFailed bool           `json:"persistenceFailed,omitempty"`
}

type Timeouts struct {
	Info     time.Duration `json:"info"`
	Evidence time.Duration `json:"evidence"`
	Decision time.Duration `json:"decision"`
}

const (
	DefaultInfoTimeout     = 180 * time.Second
	DefaultEvidenceTimeout = 60 * time.Second
	DefaultDecisionTimeout = 48 * time.Hour
)

func (t Timeouts) WithDefaults() Timeouts {
	if t.Info <= 0 {
		t.Info = DefaultInfoTimeout
	}
	if t.Evidence <= 0 {
		t.Evidence = DefaultEvidenceTimeout
	}
	if t.Decision <= 0 {
		t.Decision = DefaultDecisionTimeout
	}
	return t
}
