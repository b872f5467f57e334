// Package envfile resolves .env files with a precedence order for
// MSG_PUSH_TOKEN et al.: the configuration file's directory, the
// current working directory, then the nearest ancestor directory that
// has one. Grounded on haricheung-agentic-shell's single
// godotenv.Load(".env") call, generalized to the multi-location search.
package envfile

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/taskflow-dev/taskflow/internal/logger"
)

// Load resolves and applies the first .env file found, in precedence
// order: configDir, the current working directory, then each ancestor
// of the working directory up to the filesystem root. A missing .env
// everywhere is not an error — the process simply relies on its
// existing environment.
func Load(configDir string) {
	candidates := make([]string, 0, 4)
	if configDir != "" {
		candidates = append(candidates, filepath.Join(configDir, ".env"))
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, ".env"))
		candidates = append(candidates, ancestorEnvFiles(cwd)...)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to load .env file")
			continue
		}
		logger.Info().Str("path", path).Msg("loaded .env file")
		return
	}
}

func ancestorEnvFiles(start string) []string {
	var out []string
	dir := filepath.Dir(start)
	for {
		out = append(out, filepath.Join(dir, ".env"))
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return out
}
