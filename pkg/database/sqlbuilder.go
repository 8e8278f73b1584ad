package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// MaxBindParams is the largest number of bind parameters PostgreSQL accepts in one statement.
const MaxBindParams = 65535

// InsertBuilder is a PostgreSQL insert with conflict handling.
type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

// OnConflictDoNothing skips rows that collide with an existing row. With columns it
// targets that unique key only, so other constraint violations still fail the statement.
func (b *InsertBuilder) OnConflictDoNothing(columns ...string) *InsertBuilder {
	if len(columns) == 0 {
		b.SQL("ON CONFLICT DO NOTHING")
		return b
	}
	b.SQL(fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", strings.Join(columns, ", ")))
	return b
}

// Struct maps `db` tagged row types to statements.
type Struct struct {
	*sqlbuilder.Struct
}

func NewStruct(v any) *Struct {
	return &Struct{sqlbuilder.NewStruct(v).For(sqlbuilder.PostgreSQL)}
}

// InsertInto builds a multi-row insert of rows, which must all be of the struct's type.
func (s *Struct) InsertInto(table string, rows ...any) *InsertBuilder {
	return &InsertBuilder{s.Struct.InsertInto(table, rows...)}
}

// CountQuery returns a statement counting the rows of table.
func CountQuery(table string) (string, []any) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)").From(table)
	return sb.Build()
}
