/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package migrations

import "embed"

// FS contains embedded SQLite migrations for session documents.
//
//go:embed *.sql
var FS embed.FS
