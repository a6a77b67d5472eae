package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/linkbridge/internal/checkpoint"
	"github.com/user/linkbridge/internal/config"
	"github.com/user/linkbridge/internal/types"
)

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointShowCmd, checkpointResetCmd)
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or reset the persisted progress for the configured server",
}

func openCheckpoint(cfg *config.Config) (*checkpoint.Store, checkpoint.Record) {
	store := checkpoint.NewStore(cfg.DataDir)
	rec := store.Open(types.NewEndpointKey(cfg.Server.Host, cfg.Server.Port))
	return store, rec
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the checkpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, rec := openCheckpoint(cfg)

		ids := rec.CheckIDs()
		checks := make([]string, len(ids))
		for i, id := range ids {
			checks[i] = fmt.Sprint(id)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "file:           %s\n", store.Path(store.Endpoint()))
		fmt.Fprintf(out, "endpoint:       %s\n", store.Endpoint())
		fmt.Fprintf(out, "last applied:   %d\n", rec.LastAppliedIndex)
		fmt.Fprintf(out, "applied count:  %d\n", rec.AppliedCount)
		fmt.Fprintf(out, "reported (%d):  %s\n", len(ids), strings.Join(checks, ","))
		for k, v := range rec.SubState {
			fmt.Fprintf(out, "state %s = %s\n", k, v)
		}
		return nil
	},
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget all progress for the configured server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, _ := openCheckpoint(cfg)
		if err := store.Reset(); err != nil {
			return fmt.Errorf("reset checkpoint: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reset checkpoint for %s.\n", store.Endpoint())
		return nil
	},
}
