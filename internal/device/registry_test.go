package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db := setupTestDB(t)
	reg := NewRegistry(NewSQLiteRepository(db))
	reg.SetStateHistory(NewSQLiteStateHistoryRepository(db))
	return reg
}

// failingHistory fails every write.
type failingHistory struct {
	StateHistoryRepository
}

func (failingHistory) RecordStateChange(context.Context, string, State, string) error {
	return errors.New("disk full")
}

func seedDevices() []Device {
	return []Device{
		{ID: "hub", Name: "Main Repeater", Kind: KindBridge},
		{ID: "kitchen", Name: "Kitchen Pendants", Kind: KindDimmer, BridgeID: "hub", NativeID: "5"},
		{ID: "motion", Kind: KindOccupancy, BridgeID: "hub", NativeID: "occupancy/4"},
	}
}

func TestRegistry_Seed(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	created, err := reg.Seed(ctx, seedDevices())
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if created != 3 {
		t.Errorf("Seed() created = %d, want 3", created)
	}

	motion, err := reg.GetDevice(ctx, "motion")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if motion.Name != "motion" {
		t.Errorf("default name = %q, want id", motion.Name)
	}

	// Second run with one renamed device creates nothing and keeps state.
	if _, err := reg.ApplyState(ctx, "kitchen", map[string]any{"on": true}, "test"); err != nil {
		t.Fatalf("ApplyState() error = %v", err)
	}
	devs := seedDevices()
	devs[1].Name = "Pendants"
	created, err = reg.Seed(ctx, devs)
	if err != nil || created != 0 {
		t.Fatalf("Seed() again = %d, %v", created, err)
	}

	kitchen, _ := reg.GetDevice(ctx, "kitchen")
	if kitchen.Name != "Pendants" || kitchen.State["on"] != true {
		t.Errorf("kitchen after reseed = %+v", kitchen)
	}
}

func TestRegistry_SeedInvalid(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Seed(context.Background(), []Device{{ID: "lamp", Kind: KindDimmer}})
	if !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("Seed() error = %v, want ErrInvalidDevice", err)
	}
}

func TestRegistry_ApplyStateMerges(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	if _, err := reg.Seed(ctx, seedDevices()); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	if _, err := reg.ApplyState(ctx, "kitchen", map[string]any{"on": true, "brightness": 42}, "lutron"); err != nil {
		t.Fatalf("ApplyState() error = %v", err)
	}
	merged, err := reg.ApplyState(ctx, "kitchen", map[string]any{"brightness": 60}, "lutron")
	if err != nil {
		t.Fatalf("ApplyState() error = %v", err)
	}
	if merged["on"] != true || merged["brightness"] != 60 {
		t.Errorf("merged = %v", merged)
	}

	// The returned map is a copy.
	merged["on"] = false
	state, _ := reg.State(ctx, "kitchen")
	if state["on"] != true {
		t.Errorf("State() = %v, mutation leaked into cache", state)
	}

	// Survives a cache reload, with JSON numbers coming back as float64.
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	state, _ = reg.State(ctx, "kitchen")
	if state["brightness"] != 60.0 {
		t.Errorf("persisted state = %v", state)
	}

	history, err := reg.History(ctx, "kitchen", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].State["brightness"] != 60.0 || history[0].State["on"] != true {
		t.Errorf("History() = %+v", history)
	}
}

func TestRegistry_ApplyStateErrors(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	if _, err := reg.Seed(ctx, seedDevices()); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	if _, err := reg.ApplyState(ctx, "missing", map[string]any{"on": true}, "lutron"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("ApplyState(missing) error = %v, want ErrDeviceNotFound", err)
	}

	huge := make(map[string]any, maxStateKeys+1)
	for i := 0; i <= maxStateKeys; i++ {
		huge[fmt.Sprintf("k%d", i)] = i
	}
	if _, err := reg.ApplyState(ctx, "kitchen", huge, "lutron"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ApplyState(huge) error = %v, want ErrInvalidState", err)
	}
	if _, err := reg.History(ctx, "missing", 5); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("History(missing) error = %v", err)
	}
}

func TestRegistry_ApplyStateHistoryFailure(t *testing.T) {
	reg := newTestRegistry(t)
	reg.SetStateHistory(failingHistory{})
	ctx := context.Background()
	if _, err := reg.Seed(ctx, seedDevices()); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	merged, err := reg.ApplyState(ctx, "motion", map[string]any{"occupied": true}, "lutron")
	if err != nil {
		t.Fatalf("ApplyState() error = %v, history failure should not fail the update", err)
	}
	if merged["occupied"] != true {
		t.Errorf("merged = %v", merged)
	}
}

func TestRegistry_WithoutHistory(t *testing.T) {
	reg := NewRegistry(NewSQLiteRepository(setupTestDB(t)))
	ctx := context.Background()
	if _, err := reg.Seed(ctx, seedDevices()); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	if _, err := reg.ApplyState(ctx, "kitchen", map[string]any{"on": false}, "lutron"); err != nil {
		t.Fatalf("ApplyState() error = %v", err)
	}
	history, err := reg.History(ctx, "kitchen", 10)
	if err != nil || len(history) != 0 {
		t.Errorf("History() = %v, %v", history, err)
	}
	if n, err := reg.PruneHistory(ctx, time.Hour); n != 0 || err != nil {
		t.Errorf("PruneHistory() = %d, %v", n, err)
	}
}

func TestRegistry_ConcurrentApplyState(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	if _, err := reg.Seed(ctx, seedDevices()); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("field%d", i)
			if _, err := reg.ApplyState(ctx, "kitchen", map[string]any{key: i}, "lutron"); err != nil {
				t.Errorf("ApplyState() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	state, _ := reg.State(ctx, "kitchen")
	if len(state) != 20 {
		t.Errorf("State() has %d keys, want 20 (lost updates)", len(state))
	}
}

func TestRegistry_ListAndStats(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	if _, err := reg.Seed(ctx, seedDevices()); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	all, err := reg.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(all) != 3 || all[0].ID != "hub" || all[2].ID != "motion" {
		t.Errorf("ListDevices() = %+v", all)
	}

	onHub, _ := reg.ListByBridge(ctx, "hub")
	if len(onHub) != 2 {
		t.Errorf("ListByBridge() = %+v", onHub)
	}

	stats := reg.GetStats()
	if stats.TotalDevices != 3 || stats.ByKind[KindBridge] != 1 || stats.ByBridge["hub"] != 2 {
		t.Errorf("GetStats() = %+v", stats)
	}
	if reg.GetDeviceCount() != 3 {
		t.Errorf("GetDeviceCount() = %d", reg.GetDeviceCount())
	}
}

func TestRegistry_DeleteDevice(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	if _, err := reg.Seed(ctx, seedDevices()); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	if err := reg.DeleteDevice(ctx, "motion"); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}
	if _, err := reg.GetDevice(ctx, "motion"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice() after delete error = %v", err)
	}
	if err := reg.DeleteDevice(ctx, "motion"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("DeleteDevice() twice error = %v", err)
	}
}

func TestRegistry_GetDeviceIsolation(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	if _, err := reg.Seed(ctx, seedDevices()); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if _, err := reg.ApplyState(ctx, "kitchen", map[string]any{"on": true}, "lutron"); err != nil {
		t.Fatalf("ApplyState() error = %v", err)
	}

	d, _ := reg.GetDevice(ctx, "kitchen")
	d.State["on"] = false
	d.Name = "changed"

	again, _ := reg.GetDevice(ctx, "kitchen")
	if again.State["on"] != true || again.Name != "Kitchen Pendants" {
		t.Errorf("cache mutated through returned copy: %+v", again)
	}
}

func TestRegistry_RunPruner(t *testing.T) {
	db := setupTestDB(t)
	reg := NewRegistry(NewSQLiteRepository(db))
	reg.SetStateHistory(NewSQLiteStateHistoryRepository(db))
	insertStateHistoryRow(t, db, "kitchen", `{}`, "lutron", time.Now().Add(-72*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.RunPruner(ctx, 24*time.Hour, time.Hour)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM state_history").Scan(&n); err != nil {
			t.Fatalf("count error = %v", err)
		}
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pruner did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPruner did not return after cancel")
	}
}
