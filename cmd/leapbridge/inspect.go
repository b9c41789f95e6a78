package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-leap/internal/bridges/lutron"
	"github.com/nerrad567/gray-logic-leap/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-leap/internal/leap"
)

// inspectTimeout bounds connecting to the bridge and every listing.
const inspectTimeout = 30 * time.Second

// newInspectCommand creates the inspect command, which lists what a
// paired bridge knows so devices can be added to the configuration.
func newInspectCommand() *cobra.Command {
	var bridgeID string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List the devices, areas, scenes and occupancy groups of a bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			bridge, err := findBridge(cfg.Lutron, bridgeID)
			if err != nil {
				return err
			}

			keyFile, certFile, caFile := bridge.Credentials()
			if err := leap.CheckPaired(keyFile, certFile, caFile); err != nil {
				return fmt.Errorf("bridge %s: %w", bridge.ID, err)
			}

			client, err := leap.NewClient(leap.Config{
				Address:  bridge.Address,
				Port:     bridge.Port,
				KeyFile:  keyFile,
				CertFile: certFile,
				CAFile:   caFile,
			})
			if err != nil {
				return err
			}
			defer client.Close() //nolint:errcheck // Nothing left to do

			ctx, cancel := context.WithTimeout(cmd.Context(), inspectTimeout)
			defer cancel()

			if err := client.Connect(ctx); err != nil {
				return fmt.Errorf("connecting to %s: %w", bridge.Address, err)
			}
			pterm.Info.Printfln("Connected to %s (%s)", bridge.ID, bridge.Address)

			return printBridgeInventory(ctx, cmd.OutOrStdout(), bridge.ID, client)
		},
	}
	cmd.Flags().StringVarP(&bridgeID, "bridge", "b", "", "Configured bridge id (default: the only bridge)")
	return cmd
}

// findBridge returns the bridge with the given id, or the only configured
// bridge when id is empty.
func findBridge(cfg config.LutronConfig, id string) (config.BridgeConfig, error) {
	if id == "" {
		if len(cfg.Bridges) != 1 {
			return config.BridgeConfig{}, fmt.Errorf("%d bridges configured, choose one with --bridge", len(cfg.Bridges))
		}
		return cfg.Bridges[0], nil
	}
	for _, b := range cfg.Bridges {
		if b.ID == id {
			return b, nil
		}
	}
	return config.BridgeConfig{}, fmt.Errorf("bridge %q is not configured", id)
}

// printBridgeInventory renders one table per listing. Buttons and
// occupancy groups are shown by engine address, ready for triggers and
// linked rules.
func printBridgeInventory(ctx context.Context, w io.Writer, bridgeID string, client *leap.Client) error {
	areas, err := client.Areas(ctx)
	if err != nil {
		return fmt.Errorf("listing areas: %w", err)
	}
	areaNames := make(map[string]string, len(areas))
	areaTable := pterm.TableData{{"Area", "Name", "Parent"}}
	for _, a := range areas {
		areaNames[a.ID] = a.Name
		areaTable = append(areaTable, []string{a.ID, a.Name, a.ParentID})
	}

	devices, err := client.Devices(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}
	deviceTable := pterm.TableData{{"Native ID", "Name", "Type", "Model", "Area", "Button Groups"}}
	for _, d := range devices {
		deviceTable = append(deviceTable, []string{
			d.ID,
			d.Name,
			d.Type,
			d.Model,
			areaNames[d.AreaID],
			strings.Join(d.ButtonGroups, ","),
		})
	}

	buttons, err := client.Buttons(ctx)
	if err != nil {
		return fmt.Errorf("listing buttons: %w", err)
	}
	buttonTable := pterm.TableData{{"Address", "Name", "Number", "Device"}}
	for _, b := range buttons {
		buttonTable = append(buttonTable, []string{
			lutron.MakeAddress(bridgeID, b.ID),
			b.Name,
			fmt.Sprint(b.Number),
			b.ParentDeviceID,
		})
	}

	scenes, err := client.Scenes(ctx)
	if err != nil {
		return fmt.Errorf("listing scenes: %w", err)
	}
	sceneTable := pterm.TableData{{"Scene", "Name"}}
	for _, s := range scenes {
		sceneTable = append(sceneTable, []string{s.ID, s.Name})
	}

	groups, err := client.OccupancyGroups(ctx)
	if err != nil {
		return fmt.Errorf("listing occupancy groups: %w", err)
	}
	groupTable := pterm.TableData{{"Address", "Name", "Area", "Status"}}
	for _, g := range groups {
		groupTable = append(groupTable, []string{
			lutron.OccupancyAddress(bridgeID, g.ID),
			g.Name,
			areaNames[g.AreaID],
			string(g.Status),
		})
	}

	sections := []struct {
		title string
		rows  pterm.TableData
	}{
		{"Areas", areaTable},
		{"Devices", deviceTable},
		{"Buttons", buttonTable},
		{"Scenes", sceneTable},
		{"Occupancy groups", groupTable},
	}
	for _, s := range sections {
		fmt.Fprintf(w, "\n%s (%d)\n", s.title, len(s.rows)-1)
		if len(s.rows) == 1 {
			continue
		}
		if err := renderTable(w, s.rows); err != nil {
			return err
		}
	}
	return nil
}
