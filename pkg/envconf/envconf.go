// Package envconf fills config structs from the environment.
//
// An optional dotenv file is loaded first; variables already present in the
// environment win over it. Fields are then populated from `env` tags with
// `envDefault` fallbacks, `required` markers and nested `envPrefix` sections.
package envconf

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultFile is read when Load is given no files.
const DefaultFile = ".env"

// Load reads files (or DefaultFile) into the environment, skipping any that
// do not exist, and parses dst.
func Load(dst any, files ...string) error {
	if len(files) == 0 {
		files = []string{DefaultFile}
	}

	for _, f := range files {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}

	err := env.Parse(dst)
	if err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	return nil
}
