// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// Every component receives its logger through its constructor; there is no
// package-level logger. Named sub-loggers keep the matcher, restorer and
// orchestrator distinguishable in one stream.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("queued launch", zap.String("class", "Code"))
package logging
