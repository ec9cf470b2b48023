// Package storage defines the destination table-store client used by the
// extractor, plus a local SQLite-backed implementation.
//
// The model mirrors a staged table store: buckets ("sys.c-x", "in.c-x")
// contain tables, a table has columns, rows and free-form attributes, and
// narrowly scoped write tokens can be minted for third parties.
package storage

import (
	"errors"
	"io"
	"time"
)

// ErrTableNotFound is returned when a referenced table does not exist.
var ErrTableNotFound = errors.New("table not found")

// TableData is a fully materialized table: column names, string rows, and
// key/value attributes attached to the table itself.
type TableData struct {
	Columns    []string
	Rows       [][]string
	Attributes map[string]string
}

// Token is a time-limited credential scoped to a subset of buckets.
type Token struct {
	Token       string
	Description string
	ExpiresAt   time.Time
}

// Client is the destination store surface the extractor core depends on.
type Client interface {
	BucketExists(id string) (bool, error)

	// CreateBucket creates "<stage>.c-<name>" and returns its id.
	CreateBucket(name, stage, description string) (string, error)

	TableExists(id string) (bool, error)

	// DropTable removes a table with its rows and attributes. Dropping a
	// missing table is an error.
	DropTable(id string) error

	// ListTables returns the ids of all tables in a bucket.
	ListTables(bucketID string) ([]string, error)

	// ReadTable materializes a table. Returns ErrTableNotFound if absent.
	ReadTable(id string) (*TableData, error)

	// WriteTable replaces a table's columns, rows and attributes, creating
	// the table if needed. async allows the store to acknowledge before the
	// write is fully visible.
	WriteTable(id string, data *TableData, async bool) error

	// LoadTable bulk-loads CSV content into a table with replace semantics.
	// The first CSV row provides the column names.
	LoadTable(id string, csv io.Reader, async bool) error

	// CreateScopedToken mints a time-limited token restricted to the given
	// bucket permissions (bucket id -> "read"|"write").
	CreateScopedToken(permissions map[string]string, description string, ttl time.Duration) (*Token, error)
}
