// Package migrations embeds the tenant schema migrations so the binary can
// create and upgrade tenants without the source tree.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
