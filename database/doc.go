// Package database provides bind-aware connection management, the
// retry-aware raw statement executor, driver error classification and the
// engine error taxonomy. Configuration, logging, query hooks, statement
// metrics and seed scripts live here as well, built on top of Bun.
package database
