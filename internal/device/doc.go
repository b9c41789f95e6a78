// Package device is the host device store for leapbridge.
//
// Every device the service manages (bridges, lights, shades, fans and
// occupancy sensors) has a row in the devices table. The row carries the
// bridge linkage from configuration and the last projected state. Each
// state change is also appended to state_history, which gives a local
// audit trail even when InfluxDB is disabled.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        Device Store                           │
//	│                                                               │
//	│  ┌──────────────────┐    ┌──────────────────┐                 │
//	│  │     Registry     │    │    Repository    │                 │
//	│  │   (registry.go)  │───▶│  (repository.go) │                 │
//	│  │                  │    │                  │                 │
//	│  │ • Seed / CRUD    │    │ • devices table  │                 │
//	│  │ • State merge    │    └──────────────────┘                 │
//	│  │ • In-memory cache│    ┌──────────────────────────────┐     │
//	│  │                  │───▶│ StateHistoryRepository       │     │
//	│  └──────────────────┘    │ (state_history_sqlite.go)    │     │
//	│                          └──────────────────────────────┘     │
//	└──────────────────────────────────────────────────────────────┘
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetStateHistory(device.NewSQLiteStateHistoryRepository(db.DB))
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	if _, err := registry.Seed(ctx, devices); err != nil {
//	    return err
//	}
//
//	// From the lutron gateway:
//	merged, err := registry.ApplyState(ctx, "kitchen-pendants",
//	    map[string]any{"brightness": 42}, device.StateHistorySourceBridge)
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. ApplyState calls are
// serialised so concurrent merges on the same device never lose updates.
package device
