package actor

// State is an actor instance's lifecycle stage.
type State uint8

const (
	// Creating means on_create is running; the instance is not yet
	// registered and not yet reachable by send/tell.
	Creating State = iota
	// Running means the instance is registered and processing its mailbox.
	Running
	// Stopping means destroy_actor has been scheduled: the actor finishes
	// its current message, refuses new non-control messages, and drains
	// whatever is already queued.
	Stopping
	// Stopped means on_destroy has completed and the instance has been
	// deregistered. A Ref to a Stopped instance resolves to ActorNotFound.
	Stopped
	// Failed means the instance was quarantined after repeatedly exceeding
	// its per-message watchdog; its inbox is drained with ActorFailed.
	Failed
)

// String renders the lifecycle stage for logs.
func (s State) String() string {
	switch s {
	case Creating:
		return "creating"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
