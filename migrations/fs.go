package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// ClickhouseFS holds the event store schema under clickhouse/.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
