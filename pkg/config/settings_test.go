package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSettingsWithNoFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	s, err := LoadSettings(dir)
	require.NoError(t, err)
	require.Equal(t, "auto", s.General.Language)
	require.Equal(t, "INFO", s.General.LogLevel)
	require.Equal(t, 720, s.Images.MaxHeight)
	require.Equal(t, 85, s.Images.Quality)
}

func TestSaveSettingsRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := LoadSettings(dir)
	require.NoError(t, err)

	s.General.LogLevel = "DEBUG"
	s.Images.Resize = true
	require.NoError(t, s.Save())

	reloaded, err := LoadSettings(dir)
	require.NoError(t, err)
	require.Equal(t, "DEBUG", reloaded.General.LogLevel)
	require.True(t, reloaded.Images.Resize)
}
