// Package logging provides structured logging utilities for newsletter-digest.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Handler setup for text or JSON output at a configurable level
//   - Consistent attribute naming across pipeline stages
//   - Token sanitization so OAuth and API secrets never reach the log
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithStage(slog.Default(), "rank")
//	logger.Info("ranked newsletters",
//	    logging.Count(len(items)),
//	    logging.Status(logging.StatusSuccess))
//
// Sanitize secrets before logging:
//
//	logger.Debug("using slack token", "token", logging.SanitizeToken(token))
package logging
