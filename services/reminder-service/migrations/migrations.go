// Package migrations embeds the reminder-service schema. It expects the
// appointments and users tables from booking-service to exist in the same
// database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
