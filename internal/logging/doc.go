// Package logging provides structured logging for conductor.
//
// The package wraps Go's log/slog with a JSON handler so that every revert
// session, workspace lifecycle event and git failure leaves a machine-readable
// trail in the repository's git directory.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Child loggers carrying track, phase, session and workspace context
//   - Size-based log rotation with optional gzip compression
//   - Reading and filtering of past log entries (conductor logs)
//
// # Thread Safety
//
// [Logger] and [RotatingWriter] are safe for concurrent use. Child loggers
// created with the With* methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(stateDir, logging.LevelInfo, logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	log := logger.WithTrack("auth_20250101").WithSession(sessionID)
//	log.Info("revert started", "commits", len(plan.Commits))
//
// # Reading Logs
//
//	entries, err := logging.ReadEntries(stateDir)
//	recent := logging.FilterEntries(entries, logging.EntryFilter{
//	    Level:     logging.LevelWarn,
//	    SessionID: sessionID,
//	})
//
// # Testing
//
// Use [NopLogger] when a component requires a logger but output is not needed.
package logging
