// Package db embeds the database migrations so the binary can apply them
// without a checkout of the repository.
package db

import "embed"

// Migrations holds the golang-migrate files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS
