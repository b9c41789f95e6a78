package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-leap/internal/infrastructure/database"
)

// LinkedRulesKey is the preference key holding the serialized rule set.
const LinkedRulesKey = "linked_device_rules"

// BlobStore persists opaque configuration blobs.
// *database.DB satisfies it.
type BlobStore interface {
	LoadPreference(ctx context.Context, key string) ([]byte, error)
	SavePreference(ctx context.Context, key string, value []byte) error
}

// LinkedRuleSet holds the LinkedDeviceRules in memory and rewrites the
// whole set to the BlobStore on every change. Each change re-reads the
// stored set first, so several sets over one store do not drop each
// other's rules.
//
// Targets is consulted on every button press and never touches storage.
//
// Thread Safety: all methods are safe for concurrent use.
type LinkedRuleSet struct {
	store  BlobStore
	logger Logger

	mu    sync.RWMutex
	rules []LinkedDeviceRule
}

// NewLinkedRuleSet creates an empty rule set. Call Load to read the
// persisted rules.
func NewLinkedRuleSet(store BlobStore, logger Logger) *LinkedRuleSet {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LinkedRuleSet{store: store, logger: logger}
}

// Load replaces the in-memory rules with the persisted set. A missing
// blob is an empty set.
func (s *LinkedRuleSet) Load(ctx context.Context) error {
	rules, err := s.stored(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()

	s.logger.Info("linked rules loaded", "count", len(rules))
	return nil
}

// stored reads the persisted set. Another process (the CLI) may have
// changed it since this set last read or wrote it.
func (s *LinkedRuleSet) stored(ctx context.Context) ([]LinkedDeviceRule, error) {
	data, err := s.store.LoadPreference(ctx, LinkedRulesKey)
	if err != nil {
		if errors.Is(err, database.ErrPreferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading linked rules: %w", err)
	}

	var rules []LinkedDeviceRule
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rules); err != nil {
			return nil, fmt.Errorf("decoding linked rules: %w", err)
		}
	}
	return rules, nil
}

// List returns a copy of the rules sorted by name.
func (s *LinkedRuleSet) List() []LinkedDeviceRule {
	s.mu.RLock()
	out := make([]LinkedDeviceRule, len(s.rules))
	copy(out, s.rules)
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Add validates and persists a new rule. The same controller may not
// toggle the same target twice.
//
// The rule is added to the persisted set as it is now, so rules written
// by another process are kept, and the in-memory set is replaced by the
// result.
func (s *LinkedRuleSet) Add(ctx context.Context, rule LinkedDeviceRule) (LinkedDeviceRule, error) {
	if err := ValidateLinkedRule(&rule); err != nil {
		return LinkedDeviceRule{}, err
	}
	if rule.ID == "" {
		rule.ID = GenerateID()
	}
	if rule.Name == "" {
		rule.Name = rule.ControllerAddress + " -> " + rule.TargetDeviceID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.stored(ctx)
	if err != nil {
		return LinkedDeviceRule{}, err
	}
	for _, r := range current {
		if r.ID == rule.ID ||
			(r.ControllerAddress == rule.ControllerAddress && r.TargetDeviceID == rule.TargetDeviceID) {
			return LinkedDeviceRule{}, ErrRuleExists
		}
	}

	next := append(current, rule)
	if err := s.persist(ctx, next); err != nil {
		return LinkedDeviceRule{}, err
	}
	s.rules = next

	s.logger.Info("linked rule added",
		"id", rule.ID,
		"controller", rule.ControllerAddress,
		"target", rule.TargetDeviceID,
	)
	return rule, nil
}

// Remove deletes a rule by ID from the persisted set and persists the
// rest. Like Add, it works on the set as currently stored.
func (s *LinkedRuleSet) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.stored(ctx)
	if err != nil {
		return err
	}

	idx := -1
	for i, r := range current {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrRuleNotFound
	}

	next := make([]LinkedDeviceRule, 0, len(current)-1)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.rules = next

	s.logger.Info("linked rule removed", "id", id)
	return nil
}

// Targets returns the host device ids toggled by a press on the
// controller address, in rule order.
func (s *LinkedRuleSet) Targets(controllerAddress string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var targets []string
	for _, r := range s.rules {
		if r.ControllerAddress == controllerAddress {
			targets = append(targets, r.TargetDeviceID)
		}
	}
	return targets
}

// Len returns the number of rules.
func (s *LinkedRuleSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// persist must be called with s.mu held.
func (s *LinkedRuleSet) persist(ctx context.Context, rules []LinkedDeviceRule) error {
	if rules == nil {
		rules = []LinkedDeviceRule{}
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encoding linked rules: %w", err)
	}
	if err := s.store.SavePreference(ctx, LinkedRulesKey, data); err != nil {
		return fmt.Errorf("saving linked rules: %w", err)
	}
	return nil
}
