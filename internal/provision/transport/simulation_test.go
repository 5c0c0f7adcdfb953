package transport

import (
	"context"
	"strings"
	"testing"
)

func TestSimulation_Lifecycle(t *testing.T) {
	ctx := context.Background()
	c := NewSimulationClient()

	result, err := c.CreateInstance(ctx, CreateSpec{Slug: "cli42-abcd", Host: "cli42-abcd.flow.example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(result.RemoteServiceID, "sim-cli42-abcd-") {
		t.Fatalf("unexpected remote id: %s", result.RemoteServiceID)
	}
	if result.Status != "running" {
		t.Fatalf("expected running, got %s", result.Status)
	}

	st, err := c.GetStatus(ctx, result.RemoteServiceID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != "running" {
		t.Fatalf("expected running, got %s", st.Status)
	}

	if err := c.StopInstance(ctx, result.RemoteServiceID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	st, _ = c.GetStatus(ctx, result.RemoteServiceID)
	if st.Status != "stopped" {
		t.Fatalf("expected stopped, got %s", st.Status)
	}

	if err := c.StartInstance(ctx, result.RemoteServiceID); err != nil {
		t.Fatalf("start: %v", err)
	}
	st, _ = c.GetStatus(ctx, result.RemoteServiceID)
	if st.Status != "running" {
		t.Fatalf("expected running, got %s", st.Status)
	}

	if err := c.DeleteInstance(ctx, result.RemoteServiceID, true); err != nil {
		t.Fatalf("delete: %v", err)
	}
	st, err = c.GetStatus(ctx, result.RemoteServiceID)
	if err != nil {
		t.Fatalf("status after delete: %v", err)
	}
	if st.Status != StatusUnknown {
		t.Fatalf("expected unknown after delete, got %s", st.Status)
	}
}

func TestSimulation_UnknownService(t *testing.T) {
	c := NewSimulationClient()
	st, err := c.GetStatus(context.Background(), "sim-never-created-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != StatusUnknown {
		t.Fatalf("expected unknown, got %s", st.Status)
	}
}

func TestSimulation_DeterministicSequence(t *testing.T) {
	ctx := context.Background()
	c := NewSimulationClient()

	first, _ := c.CreateInstance(ctx, CreateSpec{Slug: "a"})
	second, _ := c.CreateInstance(ctx, CreateSpec{Slug: "b"})
	if first.RemoteServiceID != "sim-a-1" || second.RemoteServiceID != "sim-b-2" {
		t.Fatalf("identifiers must be deterministic: %s, %s", first.RemoteServiceID, second.RemoteServiceID)
	}
}
