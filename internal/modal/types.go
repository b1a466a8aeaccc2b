package modal

import "fmt"

type ActionKind string

const (
	KindBan               ActionKind = "ban"
	KindKick              ActionKind = "kick"
	KindMute              ActionKind = "mute"
	KindWarn              ActionKind = "warn"
	KindUnban             ActionKind = "unban"
	KindUnmute            ActionKind = "unmute"
	KindPurge             ActionKind = "purge"
	KindCommissionCreated ActionKind = "commission-created"
	KindCommissionDenied  ActionKind = "commission-denied"
)

// ActionKinds lists every kind in the order the stats view renders them.
var ActionKinds = []ActionKind{
	KindWarn, KindBan, KindKick, KindMute, KindUnban, KindUnmute, KindPurge,
	KindCommissionCreated, KindCommissionDenied,
}

func (k ActionKind) Valid() bool {
	for _, known := range ActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Label is the capitalised name used in user-facing messages ("Ban ID", "Mute issued").
func (k ActionKind) Label() string {
	switch k {
	case KindBan:
		return "Ban"
	case KindKick:
		return "Kick"
	case KindMute:
		return "Mute"
	case KindWarn:
		return "Warning"
	case KindUnban:
		return "Unban"
	case KindUnmute:
		return "Unmute"
	case KindPurge:
		return "Purge"
	case KindCommissionCreated:
		return "Commission"
	case KindCommissionDenied:
		return "Commission denial"
	}
	return string(k)
}

// WorkflowKind is the trigger a workflow instance was started for. Together with the
// initiator it addresses a single live instance.
type WorkflowKind string

const (
	WorkflowBan        WorkflowKind = "ban"
	WorkflowKick       WorkflowKind = "kick"
	WorkflowMute       WorkflowKind = "mute"
	WorkflowWarn       WorkflowKind = "warn"
	WorkflowUnban      WorkflowKind = "unban"
	WorkflowUnmute     WorkflowKind = "unmute"
	WorkflowPurge      WorkflowKind = "purge"
	WorkflowCommission WorkflowKind = "commission"
	WorkflowModNote    WorkflowKind = "modnote"
)

// ConversationalKinds are the kinds that wait on prompts and therefore receive routed events.
var ConversationalKinds = []WorkflowKind{
	WorkflowBan, WorkflowKick, WorkflowMute, WorkflowWarn, WorkflowCommission,
}

// WorkflowID is the Temporal workflow id for the live instance of kind started by initiator.
func WorkflowID(kind WorkflowKind, initiatorID string) string {
	return fmt.Sprintf("%s-%s", kind, initiatorID)
}

type InstanceStatus string

const (
	StatusActive           InstanceStatus = "Active"
	StatusCompleted        InstanceStatus = "Completed"
	StatusCancelledTimeout InstanceStatus = "Cancelled-Timeout"
	StatusCancelledDenied  InstanceStatus = "Cancelled-Denied"
)

func (s InstanceStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelledTimeout || s == StatusCancelledDenied
}

// InstanceState is the sequencer position. CollectingInfo carries the step number.
type InstanceState string

const (
	StateAwaitingConfirmation InstanceState = "AwaitingConfirmation"
	StateAwaitingDenialReason InstanceState = "AwaitingDenialReason"
	StateCompleted            InstanceState = "Completed"
	StateCancelled            InstanceState = "Cancelled"
)

func CollectingInfo(step int) InstanceState {
	return InstanceState(fmt.Sprintf("CollectingInfo(%d)", step))
}

// FailureReason classifies why a workflow did not complete normally.
type FailureReason string

const (
	ReasonNone         FailureReason = ""
	ReasonTimeout      FailureReason = "timeout"
	ReasonDenied       FailureReason = "denied"
	ReasonValidation   FailureReason = "validation"
	ReasonActionFailed FailureReason = "action_failed"
	ReasonPersistence  FailureReason = "persistence"
)

type CommissionStatus string

const (
	CommissionPending       CommissionStatus = "Pending"
	CommissionConfirmed     CommissionStatus = "Confirmed"
	CommissionDeniedDeleted CommissionStatus = "Denied-Deleted"
)

type PaymentMethod string

const (
	PaymentPayPal PaymentMethod = "paypal"
	PaymentRobux  PaymentMethod = "robux"
)

// Currency describes what the price of a commission is denominated in.
func (p PaymentMethod) Currency() string {
	if p == PaymentPayPal {
		return "USD (via PayPal)"
	}
	return "Robux"
}
