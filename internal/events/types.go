package events

// Event enumerates high-level topics inside the execution core.
type Event string

const (
	EventSignalQueued      Event = "signal.queued"
	EventSignalExecuted    Event = "signal.executed"
	EventSignalRejected    Event = "signal.rejected"
	EventOrderFilled       Event = "order.filled"
	EventOrderRejected     Event = "order.rejected"
	EventProtectiveTrigger Event = "protective.trigger"
	EventSessionState      Event = "session.state"
	EventRiskAlert         Event = "risk_alert"
	EventRouteDecided      Event = "route.decided"
	EventFragmentExecuted  Event = "fragment.executed"
)
