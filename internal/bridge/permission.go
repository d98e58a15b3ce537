package bridge

import (
	"github.com/coder/acp-go-sdk"
)

// AutoApprovePermission picks an option from a permission request's
// options: it prefers an allow option (AllowOnce or AllowAlways) if
// present, otherwise falls back to the first option, otherwise cancels.
// SessionActor does not call it.
func AutoApprovePermission(options []acp.PermissionOption) acp.RequestPermissionResponse {
	// Prefer an allow option if present
	for _, opt := range options {
		if opt.Kind == acp.PermissionOptionKindAllowOnce || opt.Kind == acp.PermissionOptionKindAllowAlways {
			return acp.RequestPermissionResponse{
				Outcome: acp.RequestPermissionOutcome{
					Selected: &acp.RequestPermissionOutcomeSelected{OptionId: opt.OptionId},
				},
			}
		}
	}

	// Otherwise choose the first option
	if len(options) > 0 {
		return acp.RequestPermissionResponse{
			Outcome: acp.RequestPermissionOutcome{
				Selected: &acp.RequestPermissionOutcomeSelected{OptionId: options[0].OptionId},
			},
		}
	}

	// No options available, cancel
	return acp.RequestPermissionResponse{
		Outcome: acp.RequestPermissionOutcome{Cancelled: &acp.RequestPermissionOutcomeCancelled{}},
	}
}

// CancelledPermissionResponse returns a cancelled permission response.
func CancelledPermissionResponse() acp.RequestPermissionResponse {
	return acp.RequestPermissionResponse{
		Outcome: acp.RequestPermissionOutcome{Cancelled: &acp.RequestPermissionOutcomeCancelled{}},
	}
}
