// Package logging provides structured logging for the inverter protocol stack.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the module. It provides both general logging
// functions and specialized functions for protocol-specific logging needs.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (frame hex dumps, exchange timings)
//   - Info: Normal operations (connections, discovery results, state changes)
//   - Warn: Non-fatal issues (timed-out exchanges, retries)
//   - Error: Fatal issues (socket failures, decode errors)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Inverter connected",
//	    zap.String("remote_addr", "192.168.1.100:8899"),
//	    zap.String("family", "ET"),
//	)
//
// # Specialized Logging
//
// The package provides domain-specific logging functions:
//
//	logging.LogConnection(remoteAddr, "udp", "connected")
//	logging.LogFrame("sent", remoteAddr, frameBytes)
//	logging.LogExchange(remoteAddr, "read-runtime-data", elapsed, err)
//
// # Configuration
//
// Logging is silent by default so library consumers and CLI output stay
// clean. Set the GOODWE_LOG_LEVEL environment variable (debug, info, warn,
// error) or call Initialize explicitly:
//
//	if err := logging.InitializeFromEnv(); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap
// logger handles synchronization automatically.
package logging
