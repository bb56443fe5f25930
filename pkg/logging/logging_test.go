package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	testCases := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"text info", "info", "text", false},
		{"json debug", "debug", "json", false},
		{"default format", "warn", "", false},
		{"bad level", "loud", "text", true},
		{"bad format", "info", "xml", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := setup(logrus.New(), tc.level, tc.format)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSetupJSON(t *testing.T) {
	l := logrus.New()
	var buf bytes.Buffer
	l.SetOutput(&buf)
	require.NoError(t, setup(l, "debug", "json"))

	l.WithField("module", "test").Debug("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "test", entry["module"])
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
}
