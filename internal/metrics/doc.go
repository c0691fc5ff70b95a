// Package metrics defines Prometheus metrics for ghlogin, covering login
// attempts, token polls, identity checks and credential storage.
package metrics
