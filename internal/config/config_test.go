package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaultsWithCallsignOnly(t *testing.T) {
	cfg, err := Parse([]string{"--callsign", "N0CALL-1"})
	require.NoError(t, err)
	assert.Equal(t, "N0CALL-1", cfg.Callsign)
	assert.Equal(t, 4, cfg.Window)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 8001, cfg.Port)
}

func TestParseFlagsOverrideDefaults(t *testing.T) {
	cfg, err := Parse([]string{"--callsign", "N0CALL-1", "--host", "tnc.example", "--port", "8002", "--window", "2"})
	require.NoError(t, err)
	assert.Equal(t, "tnc.example", cfg.Host)
	assert.Equal(t, 8002, cfg.Port)
	assert.Equal(t, 2, cfg.Window)
}

func TestParseRejectsWindowOutOfRange(t *testing.T) {
	_, err := Parse([]string{"--callsign", "N0CALL-1", "--window", "9"})
	assert.Error(t, err)
}

func TestParseRequiresCallsign(t *testing.T) {
	_, err := Parse([]string{})
	assert.Error(t, err)
}

func TestMaxDecompressedPayloadClampedToAbsoluteCeiling(t *testing.T) {
	cfg, err := Parse([]string{"--callsign", "N0CALL-1", "--max-decompressed-payload", "999999999"})
	require.NoError(t, err)
	assert.Equal(t, cfg.AbsoluteMaxDecompressedLen, cfg.MaxDecompressedPayload)
}

func TestYAMLFileLayeredUnderFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "axterm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("callsign: N0CALL-2\nport: 9000\nwindow: 3\n"), 0o644))

	cfg, err := Parse([]string{"--config-file", path, "--port", "9100"})
	require.NoError(t, err)
	assert.Equal(t, "N0CALL-2", cfg.Callsign, "unset flags fall through to the YAML file")
	assert.Equal(t, 3, cfg.Window)
	assert.Equal(t, 9100, cfg.Port, "explicit flag wins over the YAML file")
}
