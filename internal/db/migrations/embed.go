// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package migrations embeds the goose SQL migration files so the binary
// carries its own schema and never depends on a migrations directory being
// present on the deploy host.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
