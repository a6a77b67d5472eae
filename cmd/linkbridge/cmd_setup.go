package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/linkbridge/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("linkbridge setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Server.Host = prompt(scanner, "Server host", cfg.Server.Host)
		if n, err := strconv.Atoi(prompt(scanner, "Server port", strconv.Itoa(cfg.Server.Port))); err == nil {
			cfg.Server.Port = n
		}
		cfg.Server.Slot = prompt(scanner, "Slot name", cfg.Server.Slot)
		cfg.Server.Password = prompt(scanner, "Server password (optional)", cfg.Server.Password)
		cfg.Room.URL = prompt(scanner, "Room relay URL (empty to play solo)", cfg.Room.URL)
		if cfg.Room.URL != "" {
			cfg.Room.Room = prompt(scanner, "Room name", cfg.Room.Room)
		}
		cfg.Links.DeathLink = yesNo(scanner, "Enable DeathLink", cfg.Links.DeathLink)
		cfg.Links.TrapLink = yesNo(scanner, "Enable TrapLink", cfg.Links.TrapLink)
		cfg.Links.RingLink = yesNo(scanner, "Enable RingLink", cfg.Links.RingLink)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

func yesNo(scanner *bufio.Scanner, label string, defaultVal bool) bool {
	def := "n"
	if defaultVal {
		def = "y"
	}
	switch strings.ToLower(prompt(scanner, label+" (y/n)", def)) {
	case "y", "yes", "true":
		return true
	case "n", "no", "false":
		return false
	}
	return defaultVal
}
