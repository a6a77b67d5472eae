package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	translateCmd.PersistentFlags().StringVar(&namesPath, "names", "", "TOML name translation tables (default: built in)")
	rootCmd.AddCommand(translateCmd)
	translateCmd.AddCommand(translateSendCmd, translateReceiveCmd, translateListCmd)
}

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Look up effect names in the cross-title vocabulary",
}

var translateSendCmd = &cobra.Command{
	Use:   "send <local-name>",
	Short: "Show the standard name sent for a local effect",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := loadNames(namesPath)
		if err != nil {
			return err
		}
		std, ok := names.ToStandard(args[0])
		if !ok {
			return fmt.Errorf("no standard name for %q", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), std)
		return nil
	},
}

var translateReceiveCmd = &cobra.Command{
	Use:   "receive <standard-name>",
	Short: "Show the local effect applied for a standard name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := loadNames(namesPath)
		if err != nil {
			return err
		}
		local, ok := names.ToLocal(args[0])
		if !ok {
			return fmt.Errorf("no local effect for %q", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), local)
		return nil
	},
}

var translateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every local name and its standard name",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := loadNames(namesPath)
		if err != nil {
			return err
		}
		for _, local := range names.LocalNames() {
			std, _ := names.ToStandard(local)
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", local, std)
		}
		return nil
	},
}
