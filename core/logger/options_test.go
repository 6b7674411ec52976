package logger

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/tempmailbot/core/config"
)

func TestSettingsDefaults(t *testing.T) {
	t.Setenv("TRACE", "")
	t.Setenv("LOG_TRACE", "")

	s := settingsFrom(nil)
	assert.Equal(t, slog.LevelInfo, s.level)
	assert.Equal(t, formatJSON, s.format)
	assert.Equal(t, defaultKeyOrder, s.keyOrder)
	assert.Equal(t, [2]int{1, 50}, [2]int{s.sampleNum, s.sampleDen})
	assert.False(t, s.trace)
	assert.Equal(t, "prod", s.profile)
}

func TestSettingsFromConfig(t *testing.T) {
	t.Setenv("TRACE", "yes")

	s := settingsFrom(&coreconfig.Config{Logging: coreconfig.LoggingConfig{
		Level:       "WARNING",
		Profile:     "Dev",
		KeysOrder:   "ts, event ,level",
		DebugSample: "2/10",
	}})
	assert.Equal(t, slog.LevelWarn, s.level)
	assert.Equal(t, formatKV, s.format)
	assert.Equal(t, []string{"ts", "event", "level"}, s.keyOrder)
	assert.Equal(t, [2]int{2, 10}, [2]int{s.sampleNum, s.sampleDen})
	assert.True(t, s.trace)
	assert.Equal(t, "dev", s.profile)

	s = settingsFrom(&coreconfig.Config{Logging: coreconfig.LoggingConfig{
		Format:      "json",
		Profile:     "debug",
		DebugSample: "0",
	}})
	assert.Equal(t, formatJSON, s.format)
	assert.Equal(t, [2]int{0, 0}, [2]int{s.sampleNum, s.sampleDen})

	s = settingsFrom(&coreconfig.Config{Logging: coreconfig.LoggingConfig{DebugSample: "junk"}})
	assert.Equal(t, [2]int{1, 50}, [2]int{s.sampleNum, s.sampleDen})
}

func TestOpenSinks(t *testing.T) {
	writers, closers, err := openSinks(coreconfig.LoggingConfig{})
	require.NoError(t, err)
	assert.Len(t, writers, 1)
	assert.Empty(t, closers)

	dir := filepath.Join(t.TempDir(), "logs")
	writers, closers, err = openSinks(coreconfig.LoggingConfig{Dir: dir, BotFile: "bot.log"})
	require.NoError(t, err)
	assert.Len(t, writers, 2)
	require.Len(t, closers, 1)
	assert.NoError(t, closers[0].Close())
	assert.DirExists(t, dir)
}
