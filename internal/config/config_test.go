package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(body), 0o644))
	t.Chdir(dir)
	t.Setenv("CONFIG_ENV", "test")
}

func Test_Load_Reads_File_And_Env_Overrides(t *testing.T) {
	req := require.New(t)
	writeConfig(t, "mode: debug\nport: 9090\ndata_dir: /tmp/atelier\n")
	t.Setenv("ATELIER_OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	req.NoError(err)
	req.Equal("debug", cfg.Mode)
	req.Equal(9090, cfg.Port)
	req.Equal("/tmp/atelier", cfg.DataDir)
	req.Equal("sk-test", cfg.OpenAIAPIKey)
	// Keys the file does not mention keep their defaults.
	req.Equal(int64(32768), cfg.ReadLimit)
}

func Test_Load_Falls_Back_To_Defaults_Without_File(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_ENV", "nosuch")

	cfg, err := Load()
	req.NoError(err)
	req.Equal(8080, cfg.Port)
	req.Equal("./data", cfg.DataDir)
}

func Test_Load_Rejects_Malformed_Values(t *testing.T) {
	req := require.New(t)
	writeConfig(t, "port: not-a-number\n")

	cfg, err := Load()
	req.Error(err)
	req.Nil(cfg)
}
