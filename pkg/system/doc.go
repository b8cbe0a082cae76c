// Package system holds process-level helpers shared by flowctl packages: the
// per-session zap logger, secret redaction for log output and test loggers.
package system
