package config

import (
	"os"
	"strings"
)

// DefaultConfigPath returns FLOWCTL_CONFIG, or an empty string when no
// configuration file is configured.
func DefaultConfigPath() string {
	return os.Getenv("FLOWCTL_CONFIG")
}

// NormalizeInstanceURL turns user input such as "mycompany" or
// "mycompany.my.salesforce.com" into an absolute instance URL.
func NormalizeInstanceURL(input string) string {
	instance := strings.TrimRight(strings.TrimSpace(input), "/")
	if instance == "" {
		return ""
	}
	if !strings.HasPrefix(instance, "http://") && !strings.HasPrefix(instance, "https://") {
		instance = "https://" + instance
	}
	scheme, host, _ := strings.Cut(instance, "://")
	if !strings.Contains(host, ".") && !strings.Contains(host, ":") {
		host += ".my.salesforce.com"
	}
	return scheme + "://" + host
}

// ValidCallbackPort reports whether port may be used for the loopback listener.
func ValidCallbackPort(port int) bool {
	return port >= MinCallbackPort && port <= MaxCallbackPort
}
