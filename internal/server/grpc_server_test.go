package server

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/inantubek/rmnist/internal/runner"
	"github.com/inantubek/rmnist/pkg/models"
)

func newControlClient(t *testing.T, r *runner.Runner) *ControlClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	RegisterControlServer(gs, NewControlGRPCServer(r))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial bufconn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewControlClient(conn)
}

func TestGRPCGetStatus(t *testing.T) {
	client := newControlClient(t, completedRunner(t, 4))

	resp, err := client.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	search := resp.AsMap()["search"].(map[string]any)
	if search["status"] != string(models.RunStatusCompleted) {
		t.Errorf("expected completed, got %v", search["status"])
	}
	if search["search"].(map[string]any)["iteration"] != float64(4) {
		t.Errorf("expected 4 iterations, got %v", search["search"])
	}
}

func TestGRPCGetBest(t *testing.T) {
	r := completedRunner(t, 6)
	client := newControlClient(t, r)

	resp, err := client.GetBest(context.Background())
	if err != nil {
		t.Fatalf("GetBest failed: %v", err)
	}
	m := resp.AsMap()
	want := r.Annealer().Snapshot().BestScore.Correct
	if m["best_score"].(map[string]any)["correct"] != float64(want) {
		t.Errorf("expected best correct %d, got %v", want, m["best_score"])
	}
	if m["run_id"] != "search-test" {
		t.Errorf("expected run id search-test, got %v", m["run_id"])
	}
}

func TestGRPCStop(t *testing.T) {
	r := blockedRunner(t)
	client := newControlClient(t, r)

	if _, err := client.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	<-r.Done()

	_, err := client.Stop(context.Background())
	if status.Code(err) != codes.FailedPrecondition {
		t.Errorf("expected FailedPrecondition for a finished run, got %v", err)
	}
}

func TestGRPCUnknownMethod(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	RegisterControlServer(gs, NewControlGRPCServer(completedRunner(t, 1)))
	go func() { _ = gs.Serve(lis) }()
	defer gs.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial bufconn: %v", err)
	}
	defer conn.Close()

	client := NewControlClient(conn)
	_, err = client.invoke(context.Background(), "Restart")
	if status.Code(err) != codes.Unimplemented {
		t.Errorf("expected Unimplemented, got %v", err)
	}
}
