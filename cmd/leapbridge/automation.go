package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-leap/internal/automation"
)

// automationStore is the trigger registry and linked rule set of one
// database, opened for a single command.
type automationStore struct {
	triggers *automation.Registry
	linked   *automation.LinkedRuleSet
	close    func() error
}

// openAutomation opens the configured database and loads both rule stores.
//
// A running service keeps its rules in memory and only reads the database
// at start. Changes made here take effect on the next start; use the admin
// API to change a running service.
func openAutomation(cmd *cobra.Command) (*automationStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	triggers, linked, err := loadAutomation(ctx, db, nil)
	if err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, err
	}
	return &automationStore{triggers: triggers, linked: linked, close: db.Close}, nil
}

// withAutomation runs fn against the automation stores and closes them.
func withAutomation(cmd *cobra.Command, fn func(ctx context.Context, s *automationStore) error) error {
	s, err := openAutomation(cmd)
	if err != nil {
		return err
	}
	defer s.close() //nolint:errcheck // Read-only after fn returns

	return fn(cmd.Context(), s)
}

// ─── Linked device rules ────────────────────────────────────────────────────

// newRulesCommand creates the rules command group.
func newRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rules",
		Short:   "Manage linked device rules (a button press toggles a device)",
		Aliases: []string{"linked"},
	}

	cmd.AddCommand(
		newRulesListCommand(),
		newRulesAddCommand(),
		newRulesRemoveCommand(),
	)
	return cmd
}

func newRulesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List linked device rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAutomation(cmd, func(_ context.Context, s *automationStore) error {
				rules := s.linked.List()
				if len(rules) == 0 {
					pterm.Info.Println("No linked device rules found.")
					return nil
				}

				table := pterm.TableData{{"ID", "Name", "Controller", "Target"}}
				for _, r := range rules {
					table = append(table, []string{r.ID, r.Name, r.ControllerAddress, r.TargetDeviceID})
				}
				return renderTable(cmd.OutOrStdout(), table)
			})
		},
	}
}

func newRulesAddCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add <controller-address> <target-device-id>",
		Short: "Make presses on a button toggle a host device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAutomation(cmd, func(ctx context.Context, s *automationStore) error {
				rule, err := s.linked.Add(ctx, automation.LinkedDeviceRule{
					Name:              name,
					ControllerAddress: args[0],
					TargetDeviceID:    args[1],
				})
				if err != nil {
					return fmt.Errorf("adding rule: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), rule.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Rule name (default: controller -> target)")
	return cmd
}

func newRulesRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <rule-id>",
		Short:   "Remove a linked device rule",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAutomation(cmd, func(ctx context.Context, s *automationStore) error {
				if err := s.linked.Remove(ctx, args[0]); err != nil {
					return fmt.Errorf("removing rule: %w", err)
				}
				pterm.Success.Printfln("Removed rule %s", args[0])
				return nil
			})
		},
	}
}

// ─── Triggers ───────────────────────────────────────────────────────────────

// newTriggersCommand creates the triggers command group.
func newTriggersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triggers",
		Short: "Manage triggers published when bridge events match",
	}

	cmd.AddCommand(
		newTriggersListCommand(),
		newTriggersAddCommand(),
		newTriggersRemoveCommand(),
		newTriggersSetEnabledCommand("enable", "Start processing a trigger", true),
		newTriggersSetEnabledCommand("disable", "Stop processing a trigger without removing it", false),
	)
	return cmd
}

func newTriggersListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List triggers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAutomation(cmd, func(ctx context.Context, s *automationStore) error {
				triggers, err := s.triggers.ListTriggers(ctx)
				if err != nil {
					return fmt.Errorf("listing triggers: %w", err)
				}
				if len(triggers) == 0 {
					pterm.Info.Println("No triggers found.")
					return nil
				}

				table := pterm.TableData{{"ID", "Name", "Type", "Address", "Match", "Enabled"}}
				for _, t := range triggers {
					table = append(table, []string{
						t.ID,
						t.Name,
						string(t.Type),
						t.Address,
						triggerMatch(t),
						strconv.FormatBool(t.Enabled),
					})
				}
				return renderTable(cmd.OutOrStdout(), table)
			})
		},
	}
}

// triggerMatch renders the field the trigger type matches on.
func triggerMatch(t automation.Trigger) string {
	switch t.Type {
	case automation.TriggerButtonEvent:
		return t.EventType
	case automation.TriggerMultiPress:
		return strconv.Itoa(t.Count) + " presses"
	case automation.TriggerOccupancy:
		return t.Status
	default:
		return ""
	}
}

func newTriggersAddCommand() *cobra.Command {
	var (
		name      string
		eventType string
		count     int
		status    string
	)
	cmd := &cobra.Command{
		Use:   "add <button_event|multi_press|occupancy> <address>",
		Short: "Add a trigger",
		Long: `Add a trigger on a button or occupancy address.

  button_event  needs --event (Press, Release or LongHold)
  multi_press   needs --count (taps in one gesture)
  occupancy     needs --status (Occupied or Unoccupied)`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAutomation(cmd, func(ctx context.Context, s *automationStore) error {
				t := &automation.Trigger{
					Name:      name,
					Type:      automation.TriggerType(args[0]),
					Address:   args[1],
					EventType: eventType,
					Count:     count,
					Status:    status,
				}
				if t.Name == "" {
					t.Name = args[0] + " " + args[1]
				}
				if err := s.triggers.CreateTrigger(ctx, t); err != nil {
					return fmt.Errorf("adding trigger: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), t.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Trigger name")
	cmd.Flags().StringVar(&eventType, "event", "", "Button event type for button_event")
	cmd.Flags().IntVar(&count, "count", 0, "Press count for multi_press")
	cmd.Flags().StringVar(&status, "status", "", "Occupancy status for occupancy")
	return cmd
}

func newTriggersRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <trigger-id>",
		Short:   "Remove a trigger",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAutomation(cmd, func(ctx context.Context, s *automationStore) error {
				if err := s.triggers.DeleteTrigger(ctx, args[0]); err != nil {
					return fmt.Errorf("removing trigger: %w", err)
				}
				pterm.Success.Printfln("Removed trigger %s", args[0])
				return nil
			})
		},
	}
}

func newTriggersSetEnabledCommand(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <trigger-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAutomation(cmd, func(ctx context.Context, s *automationStore) error {
				if _, err := s.triggers.SetEnabled(ctx, args[0], enabled); err != nil {
					return fmt.Errorf("updating trigger: %w", err)
				}
				pterm.Success.Printfln("Trigger %s %sd", args[0], use)
				return nil
			})
		},
	}
}
