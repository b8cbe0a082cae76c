// Package output renders flowctl results for the terminal.
package output
