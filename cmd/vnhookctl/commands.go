package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/kalambet/vnhook/internal/artifact"
	"github.com/kalambet/vnhook/internal/classify"
	"github.com/kalambet/vnhook/internal/config"
	"github.com/kalambet/vnhook/internal/controller"
	"github.com/kalambet/vnhook/internal/daemon"
	"github.com/kalambet/vnhook/internal/settings"
	"github.com/kalambet/vnhook/internal/storage"
)

// printJSON writes raw JSON indented, colored when color is on.
func printJSON(w io.Writer, raw []byte) {
	out := pretty.Pretty(raw)
	if !noColor {
		out = pretty.Color(out, nil)
	}
	w.Write(out)
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show controller and hook daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return showStatus(cmd.Context(), client)
	},
}

func showStatus(ctx context.Context, client *apiClient) error {
	resp, err := client.get(ctx, "/status")
	if err != nil {
		printStatus("Controller", "stopped")
		return nil
	}
	var st controller.Status
	if err := decodeJSON(resp, &st); err != nil {
		return err
	}

	printStatus("Controller", "running")
	printStatus("Daemon", "%s", colorize(daemonStyle(st.Daemon), st.Daemon.String()))
	if st.Message != "" {
		printStatus("Message", "%s", st.Message)
	}
	if st.SavePending {
		printStatus("Save", "pending")
	}
	if st.RestartPending {
		printStatus("Restart", "pending")
	}
	if !st.LastSaved.IsZero() {
		printStatus("Last saved", "%s", st.LastSaved.Local().Format(time.DateTime))
	}
	return nil
}

func daemonStyle(s controller.DaemonState) lipgloss.Style {
	switch s {
	case controller.DaemonRunning:
		return styleSuccess
	case controller.DaemonNotRunning:
		return styleError
	default:
		return styleDim
	}
}

// --- settings ---

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show, change, import or export input method settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Show current settings as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		key := ""
		if len(args) == 1 {
			key = args[0]
		}
		return showSettings(cmd.Context(), client, cmd.OutOrStdout(), key)
	},
}

func showSettings(ctx context.Context, client *apiClient, w io.Writer, key string) error {
	resp, err := client.get(ctx, "/settings")
	if err != nil {
		return err
	}
	raw, err := readBody(resp)
	if err != nil {
		return err
	}
	if key == "" {
		printJSON(w, raw)
		return nil
	}
	if _, err := settings.LookupKey(key); err != nil {
		return err
	}
	v := gjson.GetBytes(raw, key)
	if !v.Exists() {
		return fmt.Errorf("setting %q not reported by the controller", key)
	}
	printJSON(w, []byte(v.Raw))
	return nil
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Long: `Change a setting. The value is typed text: "true", "vni", "ctrl+shift+z",
or JSON for list settings, e.g. '["Terminal","Code"]'.

Run "vnhookctl effects" to see what each key triggers.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return setSetting(cmd.Context(), client, args[0], args[1])
	},
}

func setSetting(ctx context.Context, client *apiClient, key, value string) error {
	if _, err := settings.LookupKey(key); err != nil {
		return err
	}
	resp, err := client.patch(ctx, "/settings", map[string]string{key: value})
	if err != nil {
		return err
	}
	var result map[string]any
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	printSuccess("Set %s = %s", key, value)
	return nil
}

var settingsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export settings as a backup file",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return exportSettings(cmd.Context(), client, cmd.OutOrStdout(), output)
	},
}

func exportSettings(ctx context.Context, client *apiClient, w io.Writer, output string) error {
	resp, err := client.get(ctx, "/settings/export")
	if err != nil {
		return err
	}
	raw, err := readBody(resp)
	if err != nil {
		return err
	}
	data := pretty.Pretty(raw)
	if output == "" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o600); err != nil {
		return fmt.Errorf("writing backup: %w", err)
	}
	printSuccess("Exported settings to %s", output)
	return nil
}

var settingsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import settings from a backup file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return importSettings(cmd.Context(), client, args[0])
	},
}

func importSettings(ctx context.Context, client *apiClient, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading backup: %w", err)
	}
	resp, err := client.post(ctx, "/settings/import?source="+url.QueryEscape(filepath.Base(path)), data)
	if err != nil {
		return err
	}
	var result struct {
		Changed int `json:"changed"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	if result.Changed == 0 {
		printSuccess("Imported %s, nothing changed", path)
		return nil
	}
	printSuccess("Imported %d settings from %s", result.Changed, path)
	return nil
}

var settingsImportsCmd = &cobra.Command{
	Use:   "imports",
	Short: "List recent settings imports",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listImports(cmd.Context(), client, cmd.OutOrStdout(), limit)
	},
}

func listImports(ctx context.Context, client *apiClient, w io.Writer, limit int) error {
	resp, err := client.get(ctx, fmt.Sprintf("/settings/imports?limit=%d", limit))
	if err != nil {
		return err
	}
	var records []storage.ImportRecord
	if err := decodeJSON(resp, &records); err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No imports recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, rec := range records {
		status := colorize(styleSuccess, rec.Status)
		if rec.Status == storage.ImportRejected {
			status = colorize(styleError, rec.Status)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d fields\t%s\n",
			rec.CreatedAt.Local().Format(time.DateTime), status, rec.Source, rec.FieldCount, rec.Error)
	}
	return tw.Flush()
}

func init() {
	settingsExportCmd.Flags().StringP("output", "o", "", "output file path (default: stdout)")
	settingsImportsCmd.Flags().Int("limit", 20, "maximum number of imports to list")
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsExportCmd)
	settingsCmd.AddCommand(settingsImportCmd)
	settingsCmd.AddCommand(settingsImportsCmd)
}

// --- daemon ---

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Control the keyboard hook daemon",
}

func daemonOpCmd(op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			return runDaemonOp(cmd.Context(), client, op)
		},
	}
}

func runDaemonOp(ctx context.Context, client *apiClient, op string) error {
	resp, err := client.post(ctx, "/daemon/"+op, nil)
	if err != nil {
		return err
	}
	var res daemon.Result
	if err := decodeJSON(resp, &res); err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("daemon %s: %s", op, res.Message)
	}
	printSuccess("%s", res.Message)
	return nil
}

var daemonEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent daemon lifecycle operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listDaemonEvents(cmd.Context(), client, cmd.OutOrStdout(), limit)
	},
}

func listDaemonEvents(ctx context.Context, client *apiClient, w io.Writer, limit int) error {
	resp, err := client.get(ctx, fmt.Sprintf("/daemon/events?limit=%d", limit))
	if err != nil {
		return err
	}
	var events []storage.DaemonEvent
	if err := decodeJSON(resp, &events); err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "No daemon events recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, ev := range events {
		mark := colorize(styleSuccess, "ok")
		if !ev.OK {
			mark = colorize(styleError, "failed")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			colorize(styleAccent, shortID(ev.ID)),
			ev.CreatedAt.Local().Format(time.DateTime), ev.Kind, mark, ev.Message)
	}
	return tw.Flush()
}

var daemonRuntimeCmd = &cobra.Command{
	Use:   "runtime",
	Short: "Show the runtime configuration the hook daemon reads",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return showRuntime(cmd.OutOrStdout(), artifact.NewWriter(cfg.RuntimeDir()))
	},
}

func showRuntime(w io.Writer, files *artifact.Writer) error {
	rc, err := files.ReadRuntime()
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("no runtime config at %s, has `vnhookctl serve` run?", files.RuntimePath())
	}
	if err != nil {
		return err
	}
	raw, err := json.Marshal(rc)
	if err != nil {
		return err
	}
	printJSON(w, raw)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	daemonEventsCmd.Flags().Int("limit", 20, "maximum number of events to list")
	daemonCmd.AddCommand(daemonOpCmd("start", "Start the hook daemon"))
	daemonCmd.AddCommand(daemonOpCmd("stop", "Stop the hook daemon and pause auto-recovery"))
	daemonCmd.AddCommand(daemonOpCmd("restart", "Restart the hook daemon with the current settings"))
	daemonCmd.AddCommand(daemonEventsCmd)
	daemonCmd.AddCommand(daemonRuntimeCmd)
}

// --- effects ---

var effectsCmd = &cobra.Command{
	Use:   "effects",
	Short: "List every setting and the side effect a change to it triggers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printEffects(cmd.OutOrStdout())
	},
}

func printEffects(w io.Writer) error {
	table := classify.Table()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range settings.AllProperties() {
		fmt.Fprintf(tw, "%s\t%s\n", p.Key(), table[p])
	}
	return tw.Flush()
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update controller configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(w, "  %s = %s  %s\n", colorize(styleBold, k.Key), k.Value, colorize(styleDim, "$"+k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		printStep("Restart `vnhookctl serve` to apply")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
