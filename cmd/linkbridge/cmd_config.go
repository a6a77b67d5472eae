package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/linkbridge/internal/config"
	"github.com/user/linkbridge/internal/scheduler"
)

var setRestart bool

func init() {
	configSetCmd.Flags().BoolVar(&setRestart, "restart", false, "restart a running daemon so the new value takes effect")
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configKeysCmd, configGetCmd, configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration values, credentials masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := config.ListValues(loadConfig(), true)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}
		for _, k := range config.Keys() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", k, values[k])
		}
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List settable keys and the values they accept",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, k := range config.Keys() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-26s %s\n", k, config.Describe(k))
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loadConfig() // writes defaults on first use
		key := args[0]
		val, err := config.GetValue(cfgPath, key)
		if err != nil {
			return err
		}
		if config.IsSecretKey(key) {
			val = config.MaskSecrets(map[string]any{key: val})[key]
		}
		fmt.Fprintln(cmd.OutOrStdout(), val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value. Values are checked before the file is touched:
link toggles take true or false, timings take milliseconds within range and
housekeeping.schedule takes a cron expression. Run "config keys" for the list.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		key, raw := args[0], args[1]
		if key == "housekeeping.schedule" {
			if err := scheduler.Validate(raw); err != nil {
				return err
			}
		}
		if err := config.SetValue(cfgPath, key, raw); err != nil {
			return err
		}
		if config.IsSecretKey(key) {
			raw = "***"
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Set %s = %s\n", key, raw)
		if !setRestart {
			return nil
		}
		d, err := findDaemon(filepath.Join(cfg.DataDir, pidFileName))
		if errors.Is(err, errNoDaemon) {
			fmt.Fprintln(out, "No running daemon; the value applies on next start.")
			return nil
		}
		if err != nil {
			return err
		}
		if err := d.signal(syscall.SIGHUP); err != nil {
			return err
		}
		fmt.Fprintf(out, "Restarting daemon (PID %d).\n", d.pid)
		return nil
	},
}
