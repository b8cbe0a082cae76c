// Package cmd implements the cobra command tree for the flowctl CLI: the
// cleanup run, authentication checks, keychain secret management,
// configuration files, shell completion and version output.
package cmd
