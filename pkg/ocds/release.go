// Package ocds decodes monthly Open Contracting release packages into typed records.
//
// Every optional object is a pointer and every optional leaf is a nullable type, so a
// missing branch of the hierarchy never fails a decode. Use Or to read a pointer as an
// empty object.
package ocds

// Or dereferences p, returning the zero value when p is nil.
func Or[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// Record is one element of the package's records list.
type Record struct {
	CompiledRelease *CompiledRelease `json:"compiledRelease"`
}

// CompiledRelease is the current state of one contracting process.
type CompiledRelease struct {
	OCID           Text      `json:"ocid"`
	ID             Text      `json:"id"`
	Date           Text      `json:"date"`
	PublishedDate  Text      `json:"publishedDate"`
	InitiationType Text      `json:"initiationType"`
	Parties        []*Party  `json:"parties"`
	Buyer          *Buyer    `json:"buyer"`
	Tender         *Tender   `json:"tender"`
	Planning       *Planning `json:"planning"`
}

type Party struct {
	ID         Text        `json:"id"`
	Name       Text        `json:"name"`
	Identifier *Identifier `json:"identifier"`
	Address    *Address    `json:"address"`
	Roles      Strings     `json:"roles"`
}

type Identifier struct {
	Scheme    Text `json:"scheme"`
	ID        Text `json:"id"`
	LegalName Text `json:"legalName"`
}

type Address struct {
	StreetAddress Text `json:"streetAddress"`
	Locality      Text `json:"locality"`
	Region        Text `json:"region"`
	Department    Text `json:"department"`
	CountryName   Text `json:"countryName"`
}

type Buyer struct {
	ID   Text `json:"id"`
	Name Text `json:"name"`
}

type Tender struct {
	ID                       Text        `json:"id"`
	Title                    Text        `json:"title"`
	Description              Text        `json:"description"`
	ProcurementMethod        Text        `json:"procurementMethod"`
	ProcurementMethodDetails Text        `json:"procurementMethodDetails"`
	MainProcurementCategory  Text        `json:"mainProcurementCategory"`
	NumberOfTenderers        Int         `json:"numberOfTenderers"`
	Value                    *Value      `json:"value"`
	DatePublished            Text        `json:"datePublished"`
	Items                    []*Item     `json:"items"`
	Documents                []*Document `json:"documents"`
	Tenderers                []*Tenderer `json:"tenderers"`
}

type Value struct {
	Amount   Number `json:"amount"`
	Currency Text   `json:"currency"`
}

type Item struct {
	ID             Text            `json:"id"`
	Description    Text            `json:"description"`
	Status         Text            `json:"status"`
	Classification *Classification `json:"classification"`
	Quantity       Number          `json:"quantity"`
	Unit           *Unit           `json:"unit"`
	TotalValue     *Value          `json:"totalValue"`
}

type Classification struct {
	ID          Text `json:"id"`
	Description Text `json:"description"`
}

type Unit struct {
	ID   Text `json:"id"`
	Name Text `json:"name"`
}

type Document struct {
	ID            Text `json:"id"`
	URL           Text `json:"url"`
	DatePublished Text `json:"datePublished"`
	Format        Text `json:"format"`
	DocumentType  Text `json:"documentType"`
	Title         Text `json:"title"`
	Language      Text `json:"language"`
}

type Tenderer struct {
	ID   Text `json:"id"`
	Name Text `json:"name"`
}

type Planning struct {
	Budget *Budget `json:"budget"`
}

type Budget struct {
	Description Text `json:"description"`
}
