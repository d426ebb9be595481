package cbmpc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cbmpc.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
engine = "Soft"
log_level = "debug"
paillier_bits = 1536

[transport]
receive_timeout = "250ms"
max_frame_size = 4096
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, EngineSoft, cfg.Engine)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 1536, cfg.PaillierBits)
	require.Equal(t, 250*time.Millisecond, cfg.Transport.ReceiveTimeout)
	require.Equal(t, 4096, cfg.Transport.MaxFrameSize)
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `engine = "auto"`))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigRejects(t *testing.T) {
	for name, body := range map[string]string{
		"engine":      `engine = "hsm"`,
		"level":       `log_level = "loud"`,
		"duration":    "[transport]\nreceive_timeout = \"soon\"",
		"negative":    "[transport]\nmax_frame_size = -1",
		"unknown key": `colour = "blue"`,
		"syntax":      `engine = `,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
		})
	}
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestZeroConfigIsValid(t *testing.T) {
	require.NoError(t, Config{}.Validate())
	require.NotNil(t, Config{}.logger())
}
