package reflex

import "context"

// #region backend

// Capabilities reports which orchestration features the backend can
// currently serve. Absent features select the documented fallback paths
// instead of failing.
type Capabilities struct {
	Sagas     bool
	Evolution bool
	GC        bool
}

// EvolutionJob is a request to evolve a PAC's parameters.
type EvolutionJob struct {
	PacID         string
	Profile       string
	FitnessWindow int64
	TriggeredBy   Tier
	TriggerEvent  Trigger
}

// SagaRequest starts a distributed decision saga. Success or failure of
// the saga itself is opaque here.
type SagaRequest struct {
	Trigger Trigger
	BitID   string
	PacID   string
	Metrics Metrics
	Context map[string]string
}

// Backend is the external orchestration surface the dispatcher tiers
// call into. All methods are best-effort: errors are logged by the
// caller and never retried here.
type Backend interface {
	Capabilities(ctx context.Context) Capabilities
	RunGC(ctx context.Context) error
	EnqueueEvolution(ctx context.Context, job EvolutionJob) error
	StartSaga(ctx context.Context, req SagaRequest) error
}

// #endregion backend
