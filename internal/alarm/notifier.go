package alarm

// Notifier is the outbound notification collaborator (the webhook HTTP
// call is out of core scope; only this contract is). Batch is the rendered
// per-tick message; a non-nil error means the whole batch is discarded, not
// retried, to avoid notification storms.
type Notifier interface {
	Notify(batch Batch) error
}

// Batch is one tick's worth of alarm events, grouped by (family, tankId).
type Batch struct {
	Groups []TankGroup
}

// TankGroup is every event for one tank in a single tick, ALARM lines
// before RESOLVED lines.
type TankGroup struct {
	Family string
	TankID string
	Alarms []Event
	Resolved []Event
}

// Empty reports whether the batch has nothing to send.
func (b Batch) Empty() bool {
	return len(b.Groups) == 0
}
