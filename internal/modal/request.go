package modal

// ModerationRequest starts a ban, kick, mute or warn workflow.
type ModerationRequest struct {
	Kind             ActionKind `json:"kind"`
	ScopeID          string     `json:"scopeId"`
	ScopeName        string     `json:"scopeName"`
	ChannelID        string     `json:"channelId"`
	Initiator        Actor      `json:"initiator"`
	Subject          Actor      `json:"subject"`
	Reason           string     `json:"reason"`
	Duration         string     `json:"duration,omitempty"`
	InteractionToken string     `json:"interactionToken,omitempty"`
	InviteURL        string     `json:"inviteUrl,omitempty"`
	Timeouts         Timeouts   `json:"timeouts"`
}

// DirectActionRequest starts an unban, unmute or purge. These have no prompts.
type DirectActionRequest struct {
	Kind             ActionKind `json:"kind"`
	ScopeID          string     `json:"scopeId"`
	ChannelID        string     `json:"channelId"`
	Initiator        Actor      `json:"initiator"`
	SubjectID        string     `json:"subjectId,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	Amount           int        `json:"amount,omitempty"`
	InteractionToken string     `json:"interactionToken,omitempty"`
}

type CommissionRequest struct {
	ScopeID          string   `json:"scopeId"`
	ChannelID        string   `json:"channelId"`
	Initiator        Actor    `json:"initiator"`
	Category         string   `json:"category"`
	InteractionToken string   `json:"interactionToken,omitempty"`
	Timeouts         Timeouts `json:"timeouts"`
}
