package jobs

import (
	"context"
	"testing"
	"time"
)

func TestCleanupConfig_Defaults(t *testing.T) {
	cfg := CleanupConfig{}.withDefaults()
	if cfg.Retention != 24*time.Hour || cfg.Interval != time.Hour {
		t.Errorf("defaults = %+v", cfg)
	}

	cfg = CleanupConfig{Retention: time.Minute, Interval: time.Second}.withDefaults()
	if cfg.Retention != time.Minute || cfg.Interval != time.Second {
		t.Errorf("explicit values overridden: %+v", cfg)
	}
}

func TestStartCleanupScheduler(t *testing.T) {
	repo := newFakeRepo()
	store := NewMemoryStore()
	m := NewManager(store, repo, repo, Config{})

	old := time.Now().UTC().Add(-2 * time.Hour)
	_ = store.Put(context.Background(), ImportJob{ID: "expired", Status: StatusCompleted, CreatedAt: old})
	_ = store.Put(context.Background(), ImportJob{ID: "running", Status: StatusProcessing, CreatedAt: old})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.StartCleanupScheduler(ctx, CleanupConfig{Retention: time.Hour, Interval: 10 * time.Millisecond})
		close(done)
	}()

	waitFor(t, "expired job removal", func() bool {
		_, err := store.Get(context.Background(), "expired")
		return err != nil
	})

	// A job expiring after start is picked up by a later tick.
	_ = store.Put(context.Background(), ImportJob{ID: "late", Status: StatusFailed, CreatedAt: old})
	waitFor(t, "late job removal", func() bool {
		_, err := store.Get(context.Background(), "late")
		return err != nil
	})

	if _, err := store.Get(context.Background(), "running"); err != nil {
		t.Errorf("PROCESSING job removed: %v", err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
