package config

import (
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvFiles are loaded, in order, from the configuration directory.
var EnvFiles = []string{".env", ".env.local"}

// LoadEnvFiles loads the EnvFiles present in dir and returns the ones that were
// read. Variables already set in the process environment are kept.
func LoadEnvFiles(dir string) []string {
	var loaded []string
	for _, name := range EnvFiles {
		p := filepath.Join(dir, name)
		if err := godotenv.Load(p); err == nil {
			loaded = append(loaded, p)
		}
	}
	return loaded
}
