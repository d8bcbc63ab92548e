package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestFileLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "orgchart.log")
	f, logger, err := FileLogger(logrus.InfoLevel, FormatJSON, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	logger.WithField("position", "CEO").Info("committed")
	logger.Debug("dropped")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"position":"CEO"`)
	require.NotContains(t, string(b), "dropped")
}

func TestFileLogger_NoPath(t *testing.T) {
	f, logger, err := FileLogger(logrus.WarnLevel, FormatText, "")
	require.NoError(t, err)
	require.Nil(t, f)
	require.Equal(t, logrus.WarnLevel, logger.GetLevel())
}
