package helpers

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONCarriesAppName(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "friendship-service", "production", "")

	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	logger.WithField("to_user_id", 7).Info("friend request sent")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "friendship-service", entry["app"])
	assert.Equal(t, "friend request sent", entry["msg"])
	assert.EqualValues(t, 7, entry["to_user_id"])
}

func TestNewLoggerLevelOverride(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, logrus.DebugLevel, newLogger(&buf, "app", "development", "").GetLevel())
	assert.Equal(t, logrus.WarnLevel, newLogger(&buf, "app", "development", "warn").GetLevel())
	assert.Equal(t, logrus.InfoLevel, newLogger(&buf, "app", "staging", "loud").GetLevel())
}
