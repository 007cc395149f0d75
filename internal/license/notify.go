package license

import "context"

// Notifier receives expiry-warning and limit events for real-time UI
// display. It is optional and fire-and-forget: the engine functions
// correctly with the sink absent or failing, so implementations must
// never block or panic.
type Notifier interface {
	NotifyExpiryWarning(ctx context.Context, tenantID, moduleKey string, status ExpiryStatus)
	NotifyLimitWarning(ctx context.Context, tenantID, moduleKey string, event WarningEvent)
	NotifyLimitViolation(ctx context.Context, tenantID, moduleKey string, event ViolationEvent)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) NotifyExpiryWarning(context.Context, string, string, ExpiryStatus) {}

func (NopNotifier) NotifyLimitWarning(context.Context, string, string, WarningEvent) {}

func (NopNotifier) NotifyLimitViolation(context.Context, string, string, ViolationEvent) {}
