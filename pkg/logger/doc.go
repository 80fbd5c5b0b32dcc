// Package logger provides the structured logging interface used across igfetch.
//
// It wraps zerolog with a small interface so components can take a Logger
// and tests can hand them a TestLogger that records every message.
//
// Basic usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("target", "natgeo")
//	log.Info("Extraction started")
//	log.WithError(err).Warn("Consent dialog not shown")
package logger
