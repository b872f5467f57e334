package envfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_ConfigDirTakesPrecedence(t *testing.T) {
	configDir := t.TempDir()
	cwd := t.TempDir()

	writeEnv(t, configDir, "MSG_PUSH_TOKEN=from-config-dir")
	writeEnv(t, cwd, "MSG_PUSH_TOKEN=from-cwd")

	restoreCwd := chdir(t, cwd)
	defer restoreCwd()

	os.Unsetenv("MSG_PUSH_TOKEN")
	Load(configDir)

	require.Equal(t, "from-config-dir", os.Getenv("MSG_PUSH_TOKEN"))
}

func TestLoad_FallsBackToCwd(t *testing.T) {
	cwd := t.TempDir()
	writeEnv(t, cwd, "MSG_PUSH_TOKEN=from-cwd")

	restoreCwd := chdir(t, cwd)
	defer restoreCwd()

	os.Unsetenv("MSG_PUSH_TOKEN")
	Load(filepath.Join(t.TempDir(), "nonexistent"))

	require.Equal(t, "from-cwd", os.Getenv("MSG_PUSH_TOKEN"))
}

func TestLoad_NoEnvFilesIsNotFatal(t *testing.T) {
	cwd := t.TempDir()
	restoreCwd := chdir(t, cwd)
	defer restoreCwd()

	os.Unsetenv("MSG_PUSH_TOKEN")
	Load(filepath.Join(t.TempDir(), "nonexistent"))

	require.Empty(t, os.Getenv("MSG_PUSH_TOKEN"))
}

func writeEnv(t *testing.T, dir, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(contents), 0o644))
}

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(orig) }
}
