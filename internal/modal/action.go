package modal

import "time"

// ActionRecord is one committed moderation or commission outcome. Records are never updated;
// corrections are new records (unban, unmute).
type ActionRecord struct {
	ActionID     string     `json:"actionId"`
	Kind         ActionKind `json:"kind"`
	SubjectID    string     `json:"subjectId"`
	ModeratorID  string     `json:"moderatorId"`
	Reason       string     `json:"reason"`
	DurationSpec *string    `json:"durationSpec,omitempty"`
	Evidence     string     `json:"evidence,omitempty"`
	ScopeID      string     `json:"scopeId"`
	ChannelID    string     `json:"channelId"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// TempActionRecord points at an in-effect, time-bounded action awaiting reversal.
type TempActionRecord struct {
	ActionID  string    `json:"actionId"`
	SubjectID string    `json:"subjectId"`
	ScopeID   string    `json:"scopeId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Commission struct {
	CommissionID  string           `json:"commissionId"`
	ClientID      string           `json:"clientId"`
	ClientName    string           `json:"clientName"`
	CreatorID     string           `json:"creatorId"`
	Details       string           `json:"details"`
	Price         string           `json:"price"`
	PaymentMethod PaymentMethod    `json:"paymentMethod"`
	Media         string           `json:"media,omitempty"`
	Status        CommissionStatus `json:"status"`
	ChannelID     string           `json:"channelId,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

type Note struct {
	ID        int64     `json:"id"`
	SubjectID string    `json:"subjectId"`
	StaffID   string    `json:"staffId"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
}

// ActionQuery selects action records. Zero values mean "no bound".
type ActionQuery struct {
	SubjectID string
	Since     time.Time
	Until     time.Time
	Limit     int
}

func (q ActionQuery) Matches(r ActionRecord) bool {
	if q.SubjectID != "" && r.SubjectID != q.SubjectID {
		return false
	}
	if !q.Since.IsZero() && r.CreatedAt.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !r.CreatedAt.Before(q.Until) {
		return false
	}
	return true
}

func StringPtr(s string) *string {
	return &s
}
