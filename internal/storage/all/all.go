// Package all registers every storage backend with the storage registry.
package all

import (
	_ "bulksync/internal/storage/memory"
	_ "bulksync/internal/storage/mssql"
	_ "bulksync/internal/storage/postgres"
	_ "bulksync/internal/storage/sqlite"
)
