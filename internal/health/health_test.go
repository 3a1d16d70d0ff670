package health

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("empty registry should be healthy")
	}
	if len(statuses) != 0 {
		t.Fatalf("expected 0 statuses, got %d", len(statuses))
	}
}

func TestRegistryAllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("profiles", func(_ context.Context) Status {
		return Status{Name: "profiles", Healthy: true}
	})
	r.Register("telegram", func(_ context.Context) Status {
		return Status{Name: "telegram", Healthy: true, Detail: "ok"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("all-healthy registry should report healthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
}

func TestRegistryOneUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("profiles", func(_ context.Context) Status {
		return Status{Name: "profiles", Healthy: true}
	})
	r.Register("db", func(_ context.Context) Status {
		return Status{Name: "db", Healthy: false, Detail: "connection refused"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Fatal("registry with unhealthy checker should report unhealthy")
	}
	if statuses[1].Detail != "connection refused" {
		t.Fatalf("expected detail 'connection refused', got %q", statuses[1].Detail)
	}
}

func TestDBChecker(t *testing.T) {
	ok := DBChecker("db", func(_ context.Context) error { return nil })
	st := ok(context.Background())
	if !st.Healthy || st.Name != "db" {
		t.Fatalf("expected healthy db status, got %+v", st)
	}

	bad := DBChecker("db", func(_ context.Context) error { return errors.New("dial tcp: refused") })
	st = bad(context.Background())
	if st.Healthy {
		t.Fatal("expected unhealthy status on ping error")
	}
	if st.Detail == "" {
		t.Fatal("expected error detail to be carried into status")
	}
}
