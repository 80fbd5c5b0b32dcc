package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igfetch/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug level no color", cfg: &config.LoggingConfig{Level: "debug", NoColor: true}},
		{name: "invalid level", cfg: &config.LoggingConfig{Level: "invalid"}, wantErr: true},
		{name: "file output", cfg: &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "igfetch.log")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestFieldsAreEmitted(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&config.LoggingConfig{Level: "debug"}, &buf)
	require.NoError(t, err)

	l.WithField("target", "natgeo").
		WithError(errors.New("boom")).
		InfoWithFields("run done", map[string]interface{}{"found": 3, "took": 2 * time.Second})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "run done", lines[0]["message"])
	assert.Equal(t, "natgeo", lines[0]["target"])
	assert.Equal(t, "boom", lines[0]["error"])
	assert.Equal(t, float64(3), lines[0]["found"])
	assert.Equal(t, "igfetch", lines[0]["app"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&config.LoggingConfig{Level: "warn"}, &buf)
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("shown")
	l.Error("shown too")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "shown", lines[0]["message"])
	assert.Equal(t, "error", lines[1]["level"])
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent, err := NewWithWriter(&config.LoggingConfig{Level: "info"}, &buf)
	require.NoError(t, err)

	_ = parent.WithField("child", true)
	parent.Info("plain")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	_, ok := lines[0]["child"]
	assert.False(t, ok)
}

func TestTestLoggerCapturesChildren(t *testing.T) {
	tl := NewTestLogger()

	tl.Info("start")
	tl.WithField("step", "consent").WithError(errors.New("gone")).Warn("skipped")
	tl.WithFields(map[string]interface{}{"a": 1}).ErrorWithFields("bad", map[string]interface{}{"b": 2})

	msgs := tl.GetMessages()
	require.Len(t, msgs, 3)
	assert.True(t, tl.HasMessage("skipped"))
	assert.True(t, tl.HasError())
	assert.Equal(t, "consent", msgs[1].Fields["step"])
	assert.EqualError(t, msgs[1].Error, "gone")
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, msgs[2].Fields)

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestLogStep(t *testing.T) {
	tl := NewTestLogger()

	LogStep(tl, "submit", time.Now(), nil)
	LogStep(tl, "stories_tab", time.Now(), errors.New("not found"))

	assert.Len(t, tl.GetMessagesByLevel("DEBUG"), 1)
	warns := tl.GetMessagesByLevel("WARN")
	require.Len(t, warns, 1)
	assert.Equal(t, "stories_tab", warns[0].Fields["step"])
}

func TestGlobalLogger(t *testing.T) {
	tl := NewTestLogger()
	SetLogger(tl)
	t.Cleanup(func() { SetLogger(nil) })

	WithField("k", "v").Info("global")
	assert.True(t, tl.HasMessage("global"))
	assert.Same(t, tl, GetLogger())
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.WithField("a", 1).WithError(errors.New("x")).ErrorWithFields("ignored", nil)
	})
}
