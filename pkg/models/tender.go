package models

import "time"

const (
	DefaultProcurementMethod = "unknown"
	DefaultCurrency          = "PEN"
)

// Tender is the procurement process of a release.
type Tender struct {
	ID                       *string    `db:"id"`
	CompiledReleaseID        *string    `db:"compiled_release_id"`
	BuyerID                  *string    `db:"buyer_id"`
	Title                    *string    `db:"title"`
	Description              *string    `db:"description"`
	ProcurementMethod        string     `db:"procurement_method"`
	ProcurementMethodDetails *string    `db:"procurement_method_details"`
	MainProcurementCategory  *string    `db:"main_procurement_category"`
	NumberOfTenderers        int64      `db:"number_of_tenderers"`
	Currency                 string     `db:"currency"`
	ValueAmount              float64    `db:"value_amount"`
	DatePublished            *time.Time `db:"date_published"`
}

// TableName returns the database table name
func (Tender) TableName() string {
	return "tenders"
}

// ConflictColumns returns the columns of the table's unique key
func (Tender) ConflictColumns() []string {
	return []string{"id"}
}

// HasKey reports whether every key column is set
func (t Tender) HasKey() bool {
	return t.ID != nil
}

// Item is a line of a tender.
type Item struct {
	ID                        *string `db:"id"`
	TenderID                  *string `db:"tender_id"`
	Description               *string `db:"description"`
	Status                    *string `db:"status"`
	ClassificationID          *string `db:"classification_id"`
	ClassificationDescription *string `db:"classification_description"`
	Quantity                  float64 `db:"quantity"`
	UnitID                    *string `db:"unit_id"`
	UnitName                  *string `db:"unit_name"`
	TotalValueAmount          float64 `db:"total_value_amount"`
}

// TableName returns the database table name
func (Item) TableName() string {
	return "items"
}

// ConflictColumns returns the columns of the table's unique key
func (Item) ConflictColumns() []string {
	return []string{"id"}
}

// HasKey reports whether every key column is set
func (i Item) HasKey() bool {
	return i.ID != nil
}

// Document is a file published with a tender.
type Document struct {
	ID            *string    `db:"id"`
	TenderID      *string    `db:"tender_id"`
	URL           *string    `db:"url"`
	DatePublished *time.Time `db:"date_published"`
	Format        *string    `db:"format"`
	DocumentType  *string    `db:"document_type"`
	Title         *string    `db:"title"`
	Language      *string    `db:"language"`
}

// TableName returns the database table name
func (Document) TableName() string {
	return "documents"
}

// ConflictColumns returns the columns of the table's unique key
func (Document) ConflictColumns() []string {
	return []string{"id"}
}

// HasKey reports whether every key column is set
func (d Document) HasKey() bool {
	return d.ID != nil
}

// Tenderer is a bidder on a tender, keyed by (id, tender_id).
type Tenderer struct {
	ID       *string `db:"id"`
	TenderID *string `db:"tender_id"`
	Name     *string `db:"name"`
}

// TableName returns the database table name
func (Tenderer) TableName() string {
	return "tenderers"
}

// ConflictColumns returns the columns of the table's unique key
func (Tenderer) ConflictColumns() []string {
	return []string{"id", "tender_id"}
}

// HasKey reports whether every key column is set
func (t Tenderer) HasKey() bool {
	return t.ID != nil && t.TenderID != nil
}
