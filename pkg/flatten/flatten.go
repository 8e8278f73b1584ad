// Package flatten maps hierarchical release records onto the eight relational row sets.
package flatten

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/ocds"
)

// RoleSeparator joins a party's roles into a single column.
const RoleSeparator = ", "

// Batch holds the rows extracted from a set of records, one ordered slice per table.
type Batch struct {
	CompiledReleases []models.CompiledRelease
	Parties          []models.Party
	Buyers           []models.Buyer
	Tenders          []models.Tender
	Items            []models.Item
	Documents        []models.Document
	Tenderers        []models.Tenderer
	Planning         []models.Planning
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Record flattens a single record.
func Record(rec ocds.Record) *Batch {
	b := NewBatch()
	b.Add(rec)
	return b
}

// Records flattens records in order.
func Records(recs []ocds.Record) *Batch {
	b := NewBatch()
	for _, rec := range recs {
		b.Add(rec)
	}
	return b
}

// Add appends the rows of one record. A CompiledRelease row is only emitted when the
// record has a non-empty ocid; every other entity is emitted regardless and may carry
// null parent keys.
func (b *Batch) Add(rec ocds.Record) {
	cr := ocds.Or(rec.CompiledRelease)
	cr.OCID = nonEmpty(cr.OCID)
	tender := ocds.Or(cr.Tender)
	buyer := ocds.Or(cr.Buyer)

	if cr.OCID.IsSet() {
		b.CompiledReleases = append(b.CompiledReleases, compiledRelease(cr))
	}

	tenderPublished := parseTime(tender.DatePublished)
	for _, party := range cr.Parties {
		if party == nil {
			continue
		}
		b.Parties = append(b.Parties, partyRow(*party, tenderPublished))
	}

	b.Buyers = append(b.Buyers, models.Buyer{
		ID:   buyer.ID.Ptr(),
		Name: buyer.Name.Ptr(),
	})

	b.Tenders = append(b.Tenders, tenderRow(tender, cr.OCID, buyer.ID))

	tenderID := tender.ID.Ptr()
	for _, item := range tender.Items {
		if item == nil {
			continue
		}
		b.Items = append(b.Items, itemRow(*item, tenderID))
	}
	for _, doc := range tender.Documents {
		if doc == nil {
			continue
		}
		b.Documents = append(b.Documents, documentRow(*doc, tenderID))
	}
	for _, tenderer := range tender.Tenderers {
		if tenderer == nil {
			continue
		}
		b.Tenderers = append(b.Tenderers, models.Tenderer{
			ID:       tenderer.ID.Ptr(),
			TenderID: tenderID,
			Name:     tenderer.Name.Ptr(),
		})
	}

	b.Planning = append(b.Planning, models.Planning{
		CompiledReleaseID: cr.OCID.Ptr(),
		BudgetDescription: ocds.Or(ocds.Or(cr.Planning).Budget).Description.Ptr(),
	})
}

// Merge appends other's rows to b.
func (b *Batch) Merge(other *Batch) {
	if other == nil {
		return
	}
	b.CompiledReleases = append(b.CompiledReleases, other.CompiledReleases...)
	b.Parties = append(b.Parties, other.Parties...)
	b.Buyers = append(b.Buyers, other.Buyers...)
	b.Tenders = append(b.Tenders, other.Tenders...)
	b.Items = append(b.Items, other.Items...)
	b.Documents = append(b.Documents, other.Documents...)
	b.Tenderers = append(b.Tenderers, other.Tenderers...)
	b.Planning = append(b.Planning, other.Planning...)
}

// Counts returns the number of rows per table name.
func (b *Batch) Counts() map[string]int {
	return map[string]int{
		models.CompiledRelease{}.TableName(): len(b.CompiledReleases),
		models.Party{}.TableName():           len(b.Parties),
		models.Buyer{}.TableName():           len(b.Buyers),
		models.Tender{}.TableName():          len(b.Tenders),
		models.Item{}.TableName():            len(b.Items),
		models.Document{}.TableName():        len(b.Documents),
		models.Tenderer{}.TableName():        len(b.Tenderers),
		models.Planning{}.TableName():        len(b.Planning),
	}
}

// Len returns the total number of rows.
func (b *Batch) Len() int {
	total := 0
	for _, n := range b.Counts() {
		total += n
	}
	return total
}

// nonEmpty treats an empty identifier as absent.
func nonEmpty(t ocds.Text) ocds.Text {
	if t.Or("") == "" {
		return ocds.Text{}
	}
	return t
}

func compiledRelease(cr ocds.CompiledRelease) models.CompiledRelease {
	return models.CompiledRelease{
		OCID:           cr.OCID.Ptr(),
		ReleaseID:      cr.ID.Ptr(),
		Date:           parseTime(cr.Date),
		PublishedDate:  parseTime(cr.PublishedDate),
		InitiationType: cr.InitiationType.Ptr(),
	}
}

func partyRow(p ocds.Party, tenderPublished *time.Time) models.Party {
	identifier := ocds.Or(p.Identifier)
	address := ocds.Or(p.Address)
	return models.Party{
		ID:               p.ID.Ptr(),
		Name:             p.Name.Ptr(),
		IdentifierScheme: identifier.Scheme.Ptr(),
		IdentifierID:     identifier.ID.Ptr(),
		LegalName:        identifier.LegalName.Ptr(),
		StreetAddress:    address.StreetAddress.Ptr(),
		Locality:         address.Locality.Ptr(),
		Region:           address.Region.Ptr(),
		Department:       address.Department.Ptr(),
		CountryName:      address.CountryName.Ptr(),
		Roles:            p.Roles.Join(RoleSeparator),
		DatePublished:    tenderPublished,
	}
}

func tenderRow(t ocds.Tender, ocid ocds.Text, buyerID ocds.Text) models.Tender {
	value := ocds.Or(t.Value)
	return models.Tender{
		ID:                       t.ID.Ptr(),
		CompiledReleaseID:        ocid.Ptr(),
		BuyerID:                  buyerID.Ptr(),
		Title:                    t.Title.Ptr(),
		Description:              t.Description.Ptr(),
		ProcurementMethod:        t.ProcurementMethod.Or(models.DefaultProcurementMethod),
		ProcurementMethodDetails: t.ProcurementMethodDetails.Ptr(),
		MainProcurementCategory:  t.MainProcurementCategory.Ptr(),
		NumberOfTenderers:        t.NumberOfTenderers.Or(0),
		Currency:                 value.Currency.Or(models.DefaultCurrency),
		ValueAmount:              value.Amount.Or(0),
		DatePublished:            parseTime(t.DatePublished),
	}
}

func itemRow(i ocds.Item, tenderID *string) models.Item {
	classification := ocds.Or(i.Classification)
	unit := ocds.Or(i.Unit)
	return models.Item{
		ID:                        i.ID.Ptr(),
		TenderID:                  tenderID,
		Description:               i.Description.Ptr(),
		Status:                    i.Status.Ptr(),
		ClassificationID:          classification.ID.Ptr(),
		ClassificationDescription: classification.Description.Ptr(),
		Quantity:                  i.Quantity.Or(0),
		UnitID:                    unit.ID.Ptr(),
		UnitName:                  unit.Name.Ptr(),
		TotalValueAmount:          ocds.Or(i.TotalValue).Amount.Or(0),
	}
}

func documentRow(d ocds.Document, tenderID *string) models.Document {
	return models.Document{
		ID:            d.ID.Ptr(),
		TenderID:      tenderID,
		URL:           d.URL.Ptr(),
		DatePublished: parseTime(d.DatePublished),
		Format:        d.Format.Ptr(),
		DocumentType:  d.DocumentType.Ptr(),
		Title:         d.Title.Ptr(),
		Language:      d.Language.Ptr(),
	}
}
