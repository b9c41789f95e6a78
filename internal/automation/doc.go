// Package automation holds the bridge's trigger descriptors and linked
// device rules.
//
// Triggers fire on bridge events: a single button event type, a
// finalized multi-press gesture of an exact tap count, or an occupancy
// status change. Linked device rules make a button press toggle a host
// device directly, without a trigger.
//
// Architecture:
//
//	┌───────────────────────────────────────────────────────┐
//	│               Evaluator (evaluator.go)                 │
//	│  EvaluateButton / EvaluateMultiPress / Occupancy       │
//	│  ┌──────────────┐    ┌──────────────┐                │
//	│  │   Registry   │───▶│  Repository  │                │
//	│  │(registry.go) │    │(repository.go)│               │
//	│  └──────────────┘    └──────────────┘                │
//	│        │ Match()                                      │
//	│        ▼                                              │
//	│  Executor.ExecuteTrigger (implemented by the host)    │
//	└───────────────────────────────────────────────────────┘
//
//	LinkedRuleSet (linked.go) ──▶ BlobStore ("linked_device_rules")
//
// # Key Types
//
//   - Trigger: persisted descriptor matched against an Event
//   - Registry: cached trigger CRUD with enable/disable
//   - Evaluator: matches events and hands matches to an Executor
//   - LinkedDeviceRule / LinkedRuleSet: press-to-toggle rules stored as
//     one opaque blob, rewritten on every change
//
// # Thread Safety
//
// Registry, Evaluator and LinkedRuleSet are safe for concurrent use.
// Match and Targets only read in-memory state.
package automation
