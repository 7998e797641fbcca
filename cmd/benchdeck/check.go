package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"benchdeck/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check [config-file]",
	Short: "Validate a daemon config file",
	Long:  "Parse and validate a YAML config file. Checks the default config (~/.benchdeck/config.yaml) when no path is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultPath()
		if len(args) > 0 {
			path = args[0]
		}

		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("FAIL  %s: %w", path, err)
		}

		command, _ := cfg.Worker.Command()
		fmt.Printf("OK    %s\n", path)
		fmt.Printf("      worker: %s (probe %s, %d attempts)\n", cfg.BaseURL(), cfg.Worker.ProbePath, cfg.Worker.ProbeAttempts)
		if command != "" {
			fmt.Printf("      launch: %s\n", command)
		} else {
			fmt.Println("      launch: none configured; daemon can only adopt a running worker")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
