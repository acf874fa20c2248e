// Package persistence keeps run history of the web UI in SQLite through sqlx.
// The store is opened in memory by default, history lives as long as the process.
package persistence
