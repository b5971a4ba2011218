/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	ConfigureConsoleOutput(&buf)
	ConfigureConsoleLogFormat("JSON")
	t.Cleanup(func() {
		ConfigureConsoleOutput(nil)
		ConfigureConsoleLogFormat("text")
	})

	l := NewLogger("QUERY")
	l.SetLevel(logrus.InfoLevel)
	l.WithField("bind", "reports").WithField("error", errors.New("boom")).Warn("Statement failed")
	l.Debug("hidden")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "warning", rec["level"])
	assert.Equal(t, "QUERY", rec["model"])
	assert.Equal(t, "Statement failed", rec["message"])
	assert.Equal(t, map[string]interface{}{"bind": "reports", "error": "boom"}, rec["fields"])
}

func TestLevels(t *testing.T) {
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel(" Warning "))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("loud"))

	ConfigureConsoleOutput(nil)
	t.Cleanup(func() { ConfigureConsoleOutput(nil) })
	l := NewLogger("LEVELS")
	assert.True(t, SetLoggerLevel("LEVELS", "error"))
	assert.Equal(t, logrus.ErrorLevel, l.GetLevel())
	assert.False(t, SetLoggerLevel("NOBODY", "error"))
}

func TestConsoleFormatter(t *testing.T) {
	f := &Log4jColorFormatter{LoggerName: "DATABASE", NameWidth: 4}
	out, err := f.Format(&logrus.Entry{
		Time:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "Tables created",
		Data:    logrus.Fields{"count": 2, "bind": "default"},
	})
	require.NoError(t, err)
	line := string(out)
	assert.Contains(t, line, "2026-01-02 03:04:05.000")
	assert.Contains(t, line, "DATA")
	assert.Contains(t, line, "Tables created bind=default count=2")
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("QUARRY_TEST_INT", "12")
	t.Setenv("QUARRY_TEST_BAD", "x")
	t.Setenv("QUARRY_TEST_BOOL", "true")
	t.Setenv("QUARRY_TEST_DURATION", "3s")

	assert.Equal(t, 12, EnvDefaultInt("QUARRY_TEST_INT", 1))
	assert.Equal(t, 1, EnvDefaultInt("QUARRY_TEST_BAD", 1))
	assert.True(t, EnvDefaultBool("QUARRY_TEST_BOOL", false))
	assert.False(t, EnvDefaultBool("QUARRY_TEST_BAD", false))
	assert.Equal(t, 3*time.Second, EnvDefaultDuration("QUARRY_TEST_DURATION", time.Second))
	assert.Equal(t, "fallback", EnvDefaultString("QUARRY_TEST_UNSET", "fallback"))
}
