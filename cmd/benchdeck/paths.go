package main

import (
	"os"
	"path/filepath"

	"benchdeck/internal/config"
)

func defaultSocketPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/benchdeck.sock"
	}
	return filepath.Join(home, ".benchdeck", "benchdeck.sock")
}

func auditLogPath() string {
	return filepath.Join(config.DefaultDir(), "audit.log")
}
