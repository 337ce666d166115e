package models

import "time"

// Asset classifications assigned by the assets extractor.
const (
	AssetBrochure  = "brochure"
	AssetFloorplan = "floorplan"
	AssetLogo      = "logo"
	AssetMemoria   = "memoria"
	AssetImage     = "image"
	AssetOther     = "other"
)

// FlagLeyVP marks projects listed under the promotional housing law.
const FlagLeyVP = "ley-vp"

// CatalogRecord is one project row observed in the paginated catalog list.
// Optional fields are pointers: nil means the card did not expose the field,
// which is not the same as an empty value.
type CatalogRecord struct {
	IdentityKey  string
	DisplayName  string
	Zone         *string
	DeliveryInfo *string
	Status       *string
	PriceFrom    *string
	IssuerName   *string
	Commission   *string
	Flags        []string
	ImageRef     *string
	DetailRef    string
	ObservedAt   time.Time
}

// HasFlag reports whether the record carries the named flag.
func (r *CatalogRecord) HasFlag(name string) bool {
	for _, f := range r.Flags {
		if f == name {
			return true
		}
	}
	return false
}

// DetailMetadata holds the free-form fields scraped from a detail page header.
type DetailMetadata struct {
	Title       *string
	Description *string
	Fields      map[string]string
}

// UnitRecord is one row of a project's unit table. Numeric fields are either
// a valid non-negative value or nil, never a sentinel.
type UnitRecord struct {
	Typology      *string
	InternalArea  *float64
	ExternalArea  *float64
	TotalArea     *float64
	PriceFrom     *float64
	PriceTo       *float64
	RentAvailable bool
	Has360        bool
	Status        *string
}

// IssuerInfo is the developer contact bundle, usually sourced from a modal.
type IssuerInfo struct {
	Name      *string
	Email     *string
	Phone     *string
	Website   *string
	LogoURL   *string
	FromModal bool
}

// AssetLink is one downloadable resource discovered on a detail page.
type AssetLink struct {
	URL            string
	Label          string
	Classification string
	MimeHint       string
}

// DetailRecord is the enriched structure built from one project's detail
// page. A partially populated (even all-empty) DetailRecord is valid.
type DetailRecord struct {
	IdentityKey     string
	Metadata        DetailMetadata
	Units           []UnitRecord
	NoUnitsDetected bool
	Issuer          *IssuerInfo
	Assets          []AssetLink
	ExtractedAt     time.Time
}

// Failure records one record-level extraction failure for post-run review.
type Failure struct {
	IdentityKey string
	Reason      string
	At          time.Time
}

// RunSummary is the final accounting of a detail-extraction run.
type RunSummary struct {
	RunID     string
	Succeeded int
	Failed    int
	Skipped   int
	Abandoned int
	Failures  []Failure
	Elapsed   time.Duration
}

// UnitHighlight points at one notable unit for the run report.
type UnitHighlight struct {
	ProjectKey string
	Typology   string
	PriceFrom  float64
}

// RunReport aggregates what a finished run extracted, for the console
// summary printed at the end.
type RunReport struct {
	TotalProjects    int
	ProjectsByZone   map[string]int
	ProjectsByStatus map[string]int
	WithLeyVP        int
	DetailsExtracted int
	TotalUnits       int
	UnitsWithRent    int
	AvgPriceFrom     float64
	MinPriceFrom     float64
	MaxPriceFrom     float64
	MostExpensive    *UnitHighlight
	AssetsByClass    map[string]int
	IssuersWithEmail int
}
