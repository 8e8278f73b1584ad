package models

import "time"

// CompiledRelease is one contracting process, keyed by its OCID.
type CompiledRelease struct {
	OCID           *string    `db:"ocid"`
	ReleaseID      *string    `db:"release_id"`
	Date           *time.Time `db:"date"`
	PublishedDate  *time.Time `db:"published_date"`
	InitiationType *string    `db:"initiation_type"`
}

// TableName returns the database table name
func (CompiledRelease) TableName() string {
	return "compiled_releases"
}

// ConflictColumns returns the columns of the table's unique key
func (CompiledRelease) ConflictColumns() []string {
	return []string{"ocid"}
}

// HasKey reports whether every key column is set
func (r CompiledRelease) HasKey() bool {
	return r.OCID != nil
}

// Party is an organization referenced by a release. Roles are comma joined.
type Party struct {
	ID               *string    `db:"id"`
	Name             *string    `db:"name"`
	IdentifierScheme *string    `db:"identifier_scheme"`
	IdentifierID     *string    `db:"identifier_id"`
	LegalName        *string    `db:"legal_name"`
	StreetAddress    *string    `db:"street_address"`
	Locality         *string    `db:"locality"`
	Region           *string    `db:"region"`
	Department       *string    `db:"department"`
	CountryName      *string    `db:"country_name"`
	Roles            string     `db:"roles"`
	DatePublished    *time.Time `db:"date_published"`
}

// TableName returns the database table name
func (Party) TableName() string {
	return "parties"
}

// ConflictColumns returns the columns of the table's unique key
func (Party) ConflictColumns() []string {
	return []string{"id"}
}

// HasKey reports whether every key column is set
func (p Party) HasKey() bool {
	return p.ID != nil
}

// Buyer is the organization purchasing under a tender.
type Buyer struct {
	ID   *string `db:"id"`
	Name *string `db:"name"`
}

// TableName returns the database table name
func (Buyer) TableName() string {
	return "buyers"
}

// ConflictColumns returns the columns of the table's unique key
func (Buyer) ConflictColumns() []string {
	return []string{"id"}
}

// HasKey reports whether every key column is set
func (b Buyer) HasKey() bool {
	return b.ID != nil
}

// Planning holds the budget description of a release.
type Planning struct {
	CompiledReleaseID *string `db:"compiled_release_id"`
	BudgetDescription *string `db:"budget_description"`
}

// TableName returns the database table name
func (Planning) TableName() string {
	return "planning"
}

// ConflictColumns returns the columns of the table's unique key
func (Planning) ConflictColumns() []string {
	return []string{"compiled_release_id"}
}

// HasKey reports whether every key column is set
func (p Planning) HasKey() bool {
	return p.CompiledReleaseID != nil
}
