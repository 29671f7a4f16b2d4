/*
Package log provides structured logging for the DataFold core using
zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│  Global Logger (zerolog.Logger, initialized via Init())   │
	│                                                            │
	│  Configuration                                             │
	│    Level: debug/info/warn/error                            │
	│    Format: JSON or console (human)                         │
	│    Output: stdout, file, or custom writer                  │
	│                                                            │
	│  Context Loggers                                           │
	│    WithComponent("mutation")                               │
	│    WithCorrelationID("...")                                │
	│    WithSchema("User")                                      │
	│    WithField("User", "email")                              │
	│    WithTransformID("...")                                  │
	└────────────────────────────────────────────────────────────┘

# Log levels

Debug: verbose, development/troubleshooting only (e.g. DSL evaluation
steps). Info: default production level (mutations applied, transforms
executed). Warn: potential issues that don't fail the operation (a
retrying transform, a dead-lettered task). Error: an operation failed
and returned an error to its caller. Fatal: unrecoverable startup
failure.

# Correlation

types.Error carries an optional CorrelationID. When logging an error
returned from a core component, prefer WithCorrelationID(err.CorrelationID)
over re-deriving context from the error message, so a single request can
be traced across the mutation engine, the bus, and the orchestrator's
background worker.
*/
package log
