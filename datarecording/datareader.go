package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/fatih/structs"
)

// Filter narrows and orders the rows returned by Reader.Rows.
type Filter struct {
	// Where is a condition without the WHERE keyword, for example
	// "RunID = ?".
	Where string
	Args  []any

	// OrderBy lists the sort columns without the ORDER BY keywords.
	OrderBy string
}

// Reader reads the tables of a database written by a DataRecorder back into
// the entry structs they were written from.
type Reader struct {
	db     *sql.DB
	tables map[string]reflect.Type
}

// NewReader opens a database file read-only.
func NewReader(dbFilename string) (*Reader, error) {
	db, err := sql.Open("sqlite3", "file:"+dbFilename+"?mode=ro")
	if err != nil {
		return nil, err
	}

	return NewReaderWithDB(db), nil
}

// NewReaderWithDB reads from an open database.
func NewReaderWithDB(db *sql.DB) *Reader {
	return &Reader{db: db, tables: make(map[string]reflect.Type)}
}

// Bind declares the entry type stored in a table. Rows of the table are
// returned as pointers to that type.
func (r *Reader) Bind(tableName string, sampleEntry any) {
	t := reflect.TypeOf(sampleEntry)
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("datarecording: %s entry is not a struct", tableName))
	}

	r.tables[tableName] = t
}

// HasTable tells whether the database holds the table.
func (r *Reader) HasTable(ctx context.Context, tableName string) (bool, error) {
	var n int

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		tableName).Scan(&n)
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// Rows returns the rows of a bound table that pass the filter.
func (r *Reader) Rows(
	ctx context.Context,
	tableName string,
	filter Filter,
) ([]any, error) {
	t, ok := r.tables[tableName]
	if !ok {
		return nil, fmt.Errorf("datarecording: table %s is not bound", tableName)
	}

	columns := structs.Names(reflect.New(t).Interface())

	var query strings.Builder
	fmt.Fprintf(&query, "SELECT %s FROM %s",
		strings.Join(columns, ", "), tableName)

	if filter.Where != "" {
		query.WriteString(" WHERE " + filter.Where)
	}

	if filter.OrderBy != "" {
		query.WriteString(" ORDER BY " + filter.OrderBy)
	}

	rows, err := r.db.QueryContext(ctx, query.String(), filter.Args...)
	if err != nil {
		return nil, fmt.Errorf("datarecording: query %s: %w", tableName, err)
	}
	defer rows.Close()

	var entries []any

	for rows.Next() {
		entry := reflect.New(t)

		targets := make([]any, len(columns))
		for i, c := range columns {
			targets[i] = entry.Elem().FieldByName(c).Addr().Interface()
		}

		err = rows.Scan(targets...)
		if err != nil {
			return nil, fmt.Errorf("datarecording: scan %s: %w", tableName, err)
		}

		entries = append(entries, entry.Interface())
	}

	return entries, rows.Err()
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}
