// Package logger provides the structured logging interface used across the
// crawler. It wraps zerolog with a small interface so components can take a
// Logger dependency and tests can swap in TestLogger.
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("keyword", "茅台").Info("Search started")
//
// Console output is colourised; when a log file is configured every line is
// also written to it as JSON.
package logger
