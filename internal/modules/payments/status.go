package payments

import "strings"

const (
	StatusInitiated            = "initiated"
	StatusPending              = "pending"
	StatusProcessing           = "processing"
	StatusRequiresAction       = "requires_action"
	StatusRequiresConfirmation = "requires_confirmation"
	StatusSucceeded            = "succeeded"
	StatusFailed               = "failed"
	StatusCancelled            = "cancelled"
	StatusRefunded             = "refunded"
	StatusPendingCash          = "pending_cash"
)

// refund state carried by a succeeded payment
const (
	RefundNone              = "none"
	RefundPartiallyRefunded = "partially_refunded"
	RefundFullyRefunded     = "fully_refunded"
)

// refund record statuses
const (
	RefundStatusPending       = "pending"
	RefundStatusSucceeded     = "succeeded"
	RefundStatusFailed        = "failed"
	RefundStatusManualPending = "manual-pending"
)

var canonical = map[string]string{
	"pending":               StatusPending,
	"processing":            StatusProcessing,
	"succeeded":             StatusSucceeded,
	"failed":                StatusFailed,
	"cancelled":             StatusCancelled,
	"requires_action":       StatusRequiresAction,
	"requires_confirmation": StatusRequiresConfirmation,
}

// CanonicalStatus maps an adapter-reported status onto the canonical
// vocabulary. Anything unrecognized is failed, never succeeded.
func CanonicalStatus(providerStatus string) string {
	if s, ok := canonical[strings.ToLower(strings.TrimSpace(providerStatus))]; ok {
		return s
	}
	return StatusFailed
}

func IsTerminal(status string) bool {
	switch status {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

func isIntermediate(status string) bool {
	switch status {
	case StatusPending, StatusProcessing, StatusRequiresAction, StatusRequiresConfirmation:
		return true
	}
	return false
}

// CanTransitionTo reports whether a payment may move from one status to
// another. Statuses only move forward: initiated, then the intermediate
// states (freely among themselves), then a terminal state. Cash awaiting
// settlement only resolves to a terminal state.
func CanTransitionTo(from, to string) bool {
	if from == to {
		return false
	}
	switch {
	case from == StatusInitiated:
		return to != StatusRefunded
	case isIntermediate(from):
		return isIntermediate(to) || (IsTerminal(to) && to != StatusRefunded)
	case from == StatusPendingCash:
		return to == StatusSucceeded || to == StatusFailed || to == StatusCancelled
	case from == StatusSucceeded:
		return to == StatusRefunded
	}
	return false
}
