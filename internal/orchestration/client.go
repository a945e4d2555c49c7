// Package orchestration is the gRPC client for the external orchestrator
// that owns garbage collection, evolution jobs, and decision sagas. The
// wire contract is dynamic structs rather than a generated stub; the
// orchestrator validates fields on its side.
package orchestration

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Thunderblok/thunderline-sub016/internal/reflex"
)

// #region methods

const (
	methodCapabilities     = "/thunderline.orchestrator.Orchestrator/Capabilities"
	methodRunGC            = "/thunderline.orchestrator.Orchestrator/RunGC"
	methodEnqueueEvolution = "/thunderline.orchestrator.Orchestrator/EnqueueEvolution"
	methodStartSaga        = "/thunderline.orchestrator.Orchestrator/StartSaga"
)

// #endregion methods

// #region client

// rpcConn is the slice of grpc.ClientConn the client needs. Tests inject
// a fake.
type rpcConn interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error
}

// Client talks to the orchestrator. It satisfies the dispatcher's
// backend contract; an unreachable orchestrator reports empty
// capabilities so callers take their documented fallback paths.
type Client struct {
	conn   rpcConn
	closer func() error
	logger *slog.Logger
}

// NewClient connects to the orchestrator at addr.
func NewClient(addr string, logger *slog.Logger) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{
		conn:   conn,
		closer: conn.Close,
		logger: logger.With("component", "orchestration"),
	}, nil
}

// NewClientWithConn creates a Client over an injected connection.
// Used for testing without a real gRPC connection.
func NewClientWithConn(conn rpcConn, logger *slog.Logger) *Client {
	return &Client{conn: conn, logger: logger.With("component", "orchestration")}
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// #endregion client

// #region backend

// Capabilities asks the orchestrator which features it currently serves.
// Unreachable or malformed replies report no capabilities.
func (c *Client) Capabilities(ctx context.Context) reflex.Capabilities {
	reply := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodCapabilities, &structpb.Struct{}, reply); err != nil {
		c.logger.Debug("capabilities probe failed", "error", err)
		return reflex.Capabilities{}
	}
	fields := reply.GetFields()
	return reflex.Capabilities{
		Sagas:     fields["sagas"].GetBoolValue(),
		Evolution: fields["evolution"].GetBoolValue(),
		GC:        fields["gc"].GetBoolValue(),
	}
}

// RunGC triggers one orchestrator GC pass and waits for its outcome.
func (c *Client) RunGC(ctx context.Context) error {
	if err := c.conn.Invoke(ctx, methodRunGC, &structpb.Struct{}, &structpb.Struct{}); err != nil {
		return fmt.Errorf("run gc rpc: %w", err)
	}
	return nil
}

// EnqueueEvolution submits an evolution job.
func (c *Client) EnqueueEvolution(ctx context.Context, job reflex.EvolutionJob) error {
	req, err := structpb.NewStruct(map[string]any{
		"pac_id":         job.PacID,
		"profile":        job.Profile,
		"fitness_window": job.FitnessWindow,
		"triggered_by":   string(job.TriggeredBy),
		"trigger_event":  string(job.TriggerEvent),
	})
	if err != nil {
		return fmt.Errorf("encode evolution job: %w", err)
	}
	if err := c.conn.Invoke(ctx, methodEnqueueEvolution, req, &structpb.Struct{}); err != nil {
		return fmt.Errorf("enqueue evolution rpc: %w", err)
	}
	return nil
}

// StartSaga starts a distributed decision saga. The saga's eventual
// success or failure is opaque here.
func (c *Client) StartSaga(ctx context.Context, req reflex.SagaRequest) error {
	sagaCtx := map[string]any{}
	for k, v := range req.Context {
		sagaCtx[k] = v
	}
	payload, err := structpb.NewStruct(map[string]any{
		"trigger": string(req.Trigger),
		"bit_id":  req.BitID,
		"pac_id":  req.PacID,
		"metrics": map[string]any{
			"entropy":    req.Metrics.Entropy,
			"lambda_hat": req.Metrics.LambdaHat,
		},
		"context": sagaCtx,
	})
	if err != nil {
		return fmt.Errorf("encode saga request: %w", err)
	}
	if err := c.conn.Invoke(ctx, methodStartSaga, payload, &structpb.Struct{}); err != nil {
		return fmt.Errorf("start saga rpc: %w", err)
	}
	return nil
}

// #endregion backend

// #region disabled

// Disabled is the backend used when no orchestrator address is
// configured: it reports no capabilities so every caller takes its local
// fallback path.
type Disabled struct{}

// NewDisabled creates a backend with no capabilities.
func NewDisabled() Disabled { return Disabled{} }

func (Disabled) Capabilities(context.Context) reflex.Capabilities { return reflex.Capabilities{} }

func (Disabled) RunGC(context.Context) error {
	return fmt.Errorf("orchestrator disabled")
}

func (Disabled) EnqueueEvolution(context.Context, reflex.EvolutionJob) error {
	return fmt.Errorf("orchestrator disabled")
}

func (Disabled) StartSaga(context.Context, reflex.SagaRequest) error {
	return fmt.Errorf("orchestrator disabled")
}

// #endregion disabled
