// Package sqlmigrations embeds the numbered schema steps of the SQLite store.
// File NNN_name.up.sql brings the schema to user_version NNN.
package sqlmigrations

import "embed"

//go:embed *.sql
var FS embed.FS
