package logger_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/SQLBM/pkg/logger"
)

func TestNewLoggerLevels(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, logger.NewLogger(true).GetLevel())
	assert.Equal(t, logrus.InfoLevel, logger.NewLogger(false).GetLevel())
	assert.Equal(t, logrus.WarnLevel, logger.New(logger.Options{Level: "warn", Output: &bytes.Buffer{}}).GetLevel())
	assert.Equal(t, logrus.InfoLevel, logger.New(logger.Options{Level: "loud", Output: &bytes.Buffer{}}).GetLevel())
}

func TestLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sqlbm.log")
	var buf bytes.Buffer

	log := logger.New(logger.Options{File: path, Output: &buf})
	log.Info("backup started")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "backup started")
	assert.Contains(t, buf.String(), "backup started")
}
