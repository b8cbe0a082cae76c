// Package audit records what a flowctl run did to each org: logins,
// production checks, deletion plans and deletes. Events fan out to the
// configured sinks (log, webhook, Kafka). The package also writes the
// deletion-plan file kept alongside every run.
package audit
