package config

import (
	"log/slog"

	"github.com/joho/godotenv"
)

// envFiles are tried in order; every file found is loaded.
var envFiles = []string{".env", ".env.local"}

// loadEnvFiles loads .env style files into the process environment.
// Variables already present in the environment win.
func loadEnvFiles() {
	for _, name := range envFiles {
		if err := godotenv.Load(name); err == nil {
			slog.Debug("Loaded environment file", "path", name)
		}
	}
}
