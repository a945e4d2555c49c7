package orchestration

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Thunderblok/thunderline-sub016/internal/reflex"
)

type fakeConn struct {
	methods []string
	args    []*structpb.Struct
	reply   map[string]any
	err     error
}

func (f *fakeConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	f.methods = append(f.methods, method)
	f.args = append(f.args, args.(*structpb.Struct))
	if f.err != nil {
		return f.err
	}
	if f.reply != nil {
		st, err := structpb.NewStruct(f.reply)
		if err != nil {
			return err
		}
		proto.Merge(reply.(*structpb.Struct), st)
	}
	return nil
}

func newTestClient(conn *fakeConn) *Client {
	return NewClientWithConn(conn, slog.New(slog.DiscardHandler))
}

func TestCapabilities(t *testing.T) {
	conn := &fakeConn{reply: map[string]any{"sagas": true, "gc": true}}
	c := newTestClient(conn)

	caps := c.Capabilities(context.Background())
	if !caps.Sagas || !caps.GC || caps.Evolution {
		t.Fatalf("unexpected capabilities: %+v", caps)
	}
	if conn.methods[0] != methodCapabilities {
		t.Fatalf("wrong method: %s", conn.methods[0])
	}
}

func TestCapabilitiesUnreachable(t *testing.T) {
	conn := &fakeConn{err: errors.New("connection refused")}
	c := newTestClient(conn)

	caps := c.Capabilities(context.Background())
	if caps != (reflex.Capabilities{}) {
		t.Fatalf("unreachable orchestrator should report no capabilities, got %+v", caps)
	}
}

func TestRunGC(t *testing.T) {
	conn := &fakeConn{}
	c := newTestClient(conn)

	if err := c.RunGC(context.Background()); err != nil {
		t.Fatalf("RunGC: %v", err)
	}
	if conn.methods[0] != methodRunGC {
		t.Fatalf("wrong method: %s", conn.methods[0])
	}

	conn.err = errors.New("gc busy")
	if err := c.RunGC(context.Background()); err == nil {
		t.Fatalf("expected error from failing gc rpc")
	}
}

func TestEnqueueEvolution(t *testing.T) {
	conn := &fakeConn{}
	c := newTestClient(conn)

	err := c.EnqueueEvolution(context.Background(), reflex.EvolutionJob{
		PacID:         "pac-1",
		Profile:       "resilient",
		FitnessWindow: 20,
		TriggeredBy:   reflex.TierEscalation,
		TriggerEvent:  reflex.TriggerEvolutionNeeded,
	})
	if err != nil {
		t.Fatalf("EnqueueEvolution: %v", err)
	}

	fields := conn.args[0].GetFields()
	if fields["pac_id"].GetStringValue() != "pac-1" {
		t.Fatalf("pac_id not encoded: %v", fields)
	}
	if fields["profile"].GetStringValue() != "resilient" {
		t.Fatalf("profile not encoded: %v", fields)
	}
	if fields["fitness_window"].GetNumberValue() != 20 {
		t.Fatalf("fitness_window not encoded: %v", fields)
	}
}

func TestStartSaga(t *testing.T) {
	conn := &fakeConn{}
	c := newTestClient(conn)

	err := c.StartSaga(context.Background(), reflex.SagaRequest{
		Trigger: reflex.TriggerSagaRequired,
		BitID:   "bit-1",
		PacID:   "pac-1",
		Metrics: reflex.Metrics{Entropy: 0.9, LambdaHat: 0.4},
		Context: map[string]string{"chunk_id": "chunk-1"},
	})
	if err != nil {
		t.Fatalf("StartSaga: %v", err)
	}

	fields := conn.args[0].GetFields()
	if fields["trigger"].GetStringValue() != "saga_required" {
		t.Fatalf("trigger not encoded: %v", fields)
	}
	metrics := fields["metrics"].GetStructValue().GetFields()
	if metrics["entropy"].GetNumberValue() != 0.9 {
		t.Fatalf("metrics not encoded: %v", metrics)
	}
	sagaCtx := fields["context"].GetStructValue().GetFields()
	if sagaCtx["chunk_id"].GetStringValue() != "chunk-1" {
		t.Fatalf("context not encoded: %v", sagaCtx)
	}
}

func TestDisabledBackend(t *testing.T) {
	d := NewDisabled()
	if d.Capabilities(context.Background()) != (reflex.Capabilities{}) {
		t.Fatalf("disabled backend should report no capabilities")
	}
	if err := d.RunGC(context.Background()); err == nil {
		t.Fatalf("disabled backend RunGC should fail")
	}
	if err := d.StartSaga(context.Background(), reflex.SagaRequest{}); err == nil {
		t.Fatalf("disabled backend StartSaga should fail")
	}
}
