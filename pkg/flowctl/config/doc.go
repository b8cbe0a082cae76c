// Package config loads the flowctl batch configuration file.
package config
