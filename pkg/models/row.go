// Package models holds the relational rows produced from release records.
package models

// Row is a row of one of the target tables.
type Row interface {
	TableName() string
	ConflictColumns() []string
	HasKey() bool
}
