package scanjob

// Phase is one state of the scan job lifecycle. Transitions only ever move
// forward through Queued, Running, then one of Finished or Failed.
type Phase string

const (
	PhaseQueued   Phase = "queued"
	PhaseRunning  Phase = "running"
	PhaseFinished Phase = "finished"
	PhaseFailed   Phase = "failed"
)

// Rank orders the phases along the lifecycle; unknown phases rank below
// Queued. Streams use it to drop stale or repeated updates.
func (p Phase) Rank() int {
	switch p {
	case PhaseQueued:
		return 0
	case PhaseRunning:
		return 1
	case PhaseFinished, PhaseFailed:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether no further transition is legal from p.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseFailed
}

// Allows reports whether a transition from p to next is legal.
func (p Phase) Allows(next Phase) bool {
	if p == "" {
		return next == PhaseQueued
	}
	return !p.Terminal() && next.Rank() == p.Rank()+1
}

// Status is the scan state attached to a project. The dependency counters
// are only meaningful once the phase is Finished.
type Status struct {
	Phase        Phase `json:"phase"`
	Dependencies int   `json:"dependencies,omitempty"`
	Vulnerable   int   `json:"vulnerable,omitempty"`
}

// StatusUpdate is the push payload published on every transition. The node
// list is empty except on Finished.
type StatusUpdate struct {
	ProjectID       string `json:"projectId"`
	Status          Status `json:"status"`
	AffectedNodeIDs []int  `json:"affectedNodeIds,omitempty"`
}
