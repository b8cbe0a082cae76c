// Package metrics defines the Prometheus metrics of a flowctl run and
// exports them to a node-exporter textfile or a Pushgateway.
package metrics
