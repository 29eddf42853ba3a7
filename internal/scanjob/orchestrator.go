package scanjob

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"

	"coverscope/internal/archive"
	"coverscope/internal/forest"
)

// ErrScanTool wraps a failure to execute the external scan tool.
var ErrScanTool = errors.New("scanjob: scan tool failed")

// Runner executes the external vulnerability scan tool against the uploaded
// artifact and returns its report.
type Runner interface {
	Run(ctx context.Context, artifactPath string) (io.ReadCloser, error)
}

// ProjectRegistry is the narrow registry view the orchestrator needs. Both
// mutators report whether the project still exists; a rolled-back project
// makes them return false and the orchestrator discards its update silently.
type ProjectRegistry interface {
	SetScanStatus(projectID string, st Status) bool
	UpdateForest(projectID string, fn func(*forest.Forest)) bool
}

// Publisher receives one push per status transition, ordered per project.
type Publisher interface {
	Publish(u StatusUpdate)
}

// CommitWaiter blocks until the project's ingestion has committed or rolled
// back, reporting which. Node flagging needs the committed forest, so the
// orchestrator waits on it after the tool run.
type CommitWaiter interface {
	AwaitCommit(ctx context.Context, projectID string) bool
}

// Orchestrator drives the per-project scan job state machine:
// Queued -> Running -> Finished | Failed. At most one job per project is in
// flight; a finished job can be admitted again through Requeue.
type Orchestrator struct {
	registry  ProjectRegistry
	publisher Publisher
	runner    Runner
	waiter    CommitWaiter

	mu     sync.Mutex
	phases map[string]Phase // in-flight jobs only; terminal jobs are retired
}

func NewOrchestrator(registry ProjectRegistry, publisher Publisher, runner Runner, waiter CommitWaiter) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		publisher: publisher,
		runner:    runner,
		waiter:    waiter,
		phases:    make(map[string]Phase),
	}
}

// Queue transitions the project's scan job to Queued and pushes. It is called
// synchronously when ingestion begins.
func (o *Orchestrator) Queue(projectID string) {
	o.transition(projectID, Status{Phase: PhaseQueued}, nil)
}

// Requeue admits another scan of an already ingested artifact, taking the
// job back to Queued. It refuses while a job is still in flight.
func (o *Orchestrator) Requeue(projectID string) bool {
	o.mu.Lock()
	_, active := o.phases[projectID]
	o.mu.Unlock()
	if active {
		return false
	}
	return o.transition(projectID, Status{Phase: PhaseQueued}, nil)
}

// Execute runs the scan job to its terminal state. The caller-supplied
// cleanup runs exactly once on every exit path, wherever the pipeline stops.
func (o *Orchestrator) Execute(ctx context.Context, projectID, artifactPath string, cleanup func()) {
	defer func() {
		if cleanup != nil {
			cleanup()
		}
	}()

	if !o.transition(projectID, Status{Phase: PhaseRunning}, nil) {
		return
	}

	deps, err := o.runTool(ctx, artifactPath)
	if err != nil {
		log.Printf("scan %s failed: %v", projectID, err)
		o.transition(projectID, Status{Phase: PhaseFailed}, nil)
		return
	}

	if o.waiter != nil && !o.waiter.AwaitCommit(ctx, projectID) {
		// Project rolled back while the tool was running; discard silently
		// and retire the job.
		o.mu.Lock()
		delete(o.phases, projectID)
		o.mu.Unlock()
		return
	}

	total := len(deps)
	vulnerable := 0
	var labels []string
	for _, d := range deps {
		if !d.Vulnerable {
			continue
		}
		vulnerable++
		if label := dependencyGroupLabel(artifactPath, d.FilePath); label != "" {
			labels = append(labels, label)
		}
	}
	nodeIDs := o.flagNodes(projectID, labels)
	o.transition(projectID, Status{
		Phase:        PhaseFinished,
		Dependencies: total,
		Vulnerable:   vulnerable,
	}, nodeIDs)
}

func (o *Orchestrator) runTool(ctx context.Context, artifactPath string) ([]Dependency, error) {
	rep, err := o.runner.Run(ctx, artifactPath)
	if err != nil {
		return nil, errors.Join(ErrScanTool, err)
	}
	defer rep.Close()
	return ParseReport(rep)
}

// flagNodes sets the vulnerability flag on every tree node addressed by a
// derived group label and collects the flagged identifiers.
func (o *Orchestrator) flagNodes(projectID string, labels []string) []int {
	if len(labels) == 0 {
		return nil
	}
	var ids []int
	o.registry.UpdateForest(projectID, func(f *forest.Forest) {
		for _, label := range labels {
			if n, ok := f.Group(label); ok {
				n.Vulnerable = true
				ids = append(ids, n.ID)
			}
		}
	})
	return ids
}

// transition advances the project's scan phase, records it on the registry
// and pushes. Illegal transitions and updates against a rolled-back project
// are dropped.
func (o *Orchestrator) transition(projectID string, st Status, nodeIDs []int) bool {
	o.mu.Lock()
	cur := o.phases[projectID]
	if !cur.Allows(st.Phase) {
		o.mu.Unlock()
		return false
	}
	if st.Phase.Terminal() {
		// The registry keeps the durable status; the in-flight table does
		// not grow with finished jobs.
		delete(o.phases, projectID)
	} else {
		o.phases[projectID] = st.Phase
	}
	o.mu.Unlock()

	if !o.registry.SetScanStatus(projectID, st) {
		return false
	}
	if o.publisher != nil {
		o.publisher.Publish(StatusUpdate{
			ProjectID:       projectID,
			Status:          st,
			AffectedNodeIDs: nodeIDs,
		})
	}
	return true
}

// dependencyGroupLabel derives the structural label of a reported dependency
// by stripping the artifact's own path prefix and joining the remaining
// segments under the JARs namespace.
func dependencyGroupLabel(artifactPath, filePath string) string {
	rel := strings.TrimPrefix(filePath, artifactPath)
	rel = strings.ReplaceAll(rel, "\\", "/")
	segs := strings.FieldsFunc(rel, func(r rune) bool {
		return r == '/' || r == '!'
	})
	if len(segs) == 0 {
		return ""
	}
	return archive.NestedGroupPrefix + strings.Join(segs, "/")
}
