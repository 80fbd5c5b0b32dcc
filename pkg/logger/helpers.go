package logger

import (
	"context"
	"time"
)

// nopLogger discards everything
type nopLogger struct{}

// NewNopLogger returns a Logger that drops all output
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string) {}
func (nopLogger) Info(string) {}
func (nopLogger) Warn(string) {}
func (nopLogger) Error(string) {}
func (n nopLogger) WithField(string, interface{}) Logger { return n }
func (n nopLogger) WithFields(map[string]interface{}) Logger { return n }
func (n nopLogger) WithError(error) Logger { return n }
func (n nopLogger) WithContext(context.Context) Logger { return n }
func (nopLogger) DebugWithFields(string, map[string]interface{}) {}
func (nopLogger) InfoWithFields(string, map[string]interface{}) {}
func (nopLogger) WarnWithFields(string, map[string]interface{}) {}
func (nopLogger) ErrorWithFields(string, map[string]interface{}) {}

// LogStep logs the outcome of one interaction step of the site protocol
func LogStep(l Logger, step string, started time.Time, err error) {
	fields := map[string]interface{}{
		"step":     step,
		"duration": time.Since(started),
	}
	if err != nil {
		l.WithError(err).WarnWithFields("Step failed", fields)
		return
	}
	l.DebugWithFields("Step completed", fields)
}

// LogCheck logs a single link validation
func LogCheck(l Logger, url string, ordinal int, status string, duration time.Duration) {
	fields := map[string]interface{}{
		"ordinal":  ordinal,
		"url":      url,
		"status":   status,
		"duration": duration,
	}
	if status == "valid" {
		l.DebugWithFields("Link valid", fields)
		return
	}
	l.WarnWithFields("Link rejected", fields)
}

// LogRunSummary logs the final counts of an extraction run
func LogRunSummary(l Logger, kind, target, outcome string, found, valid int, elapsed time.Duration) {
	l.InfoWithFields("Extraction finished", map[string]interface{}{
		"kind":     kind,
		"target":   target,
		"outcome":  outcome,
		"found":    found,
		"valid":    valid,
		"duration": elapsed,
	})
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, cfg map[string]interface{}) {
	l = l.WithField("component", component)
	if len(cfg) > 0 {
		l = l.WithFields(cfg)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}
