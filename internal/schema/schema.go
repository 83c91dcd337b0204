// Package schema is the documented tabular contract for uploads and updates:
// which headers each entity understands, which are required, how each cell
// is decoded and where it lands in storage.
package schema

import (
	"fmt"
	"strings"

	"bulksync/internal/storage"
)

// Entity names a syncable record type.
type Entity string

const (
	Organizations Entity = "organizations"
	Contacts      Entity = "contacts"
)

// ParseEntity accepts the entity name in any case, plus the singular forms
// and "teams" as an alias for organizations.
func ParseEntity(s string) (Entity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "organizations", "organization", "orgs", "teams", "team":
		return Organizations, nil
	case "contacts", "contact", "people":
		return Contacts, nil
	default:
		return "", fmt.Errorf("unknown entity %q (want organizations or contacts)", s)
	}
}

// DefaultBatchSize is 100 rows for organizations and 50 for contacts.
func (e Entity) DefaultBatchSize() int {
	if e == Contacts {
		return 50
	}
	return 100
}

// Table is the storage table rows of this entity are written to.
func (e Entity) Table() string {
	if e == Contacts {
		return storage.Contacts
	}
	return storage.Organizations
}

// Kind is how a cell is decoded before it is written.
type Kind int

const (
	Text Kind = iota
	Integer
	Decimal
	Boolean
	Email
	SocialLinks
	OpeningHours
	Reference
)

// Column is one documented header.
type Column struct {
	// Header is the canonical header text; matching is case-insensitive.
	Header string
	// DBColumn is the storage column the decoded value is written to.
	DBColumn string
	Kind     Kind
	Required bool
	// Lookup is the table a Reference cell resolves against.
	Lookup string
	// CreateMissing marks references that are created on demand.
	CreateMissing bool
}

// Updatable reports whether an update run may select this column.
// Name is the match key and can never be written by an update.
func (c Column) Updatable() bool { return c.Header != HeaderName }

// Canonical header names.
const (
	HeaderName          = "Name"
	HeaderSport         = "Sport"
	HeaderLevel         = "Level"
	HeaderStreet        = "Street"
	HeaderPostal        = "Postal"
	HeaderCity          = "City"
	HeaderCountry       = "Country"
	HeaderWebsite       = "Website"
	HeaderPhone         = "Phone"
	HeaderEmail         = "Email"
	HeaderFounded       = "Founded"
	HeaderRevenue       = "Revenue"
	HeaderEmployees     = "Employees"
	HeaderSocials       = "Socials"
	HeaderHours         = "Hours"
	HeaderTeam          = "Team"
	HeaderRole          = "Role"
	HeaderEmailVerified = "Is_Email_Verified"
	HeaderLinkedIn      = "LinkedIn"
	HeaderDepartment    = "Department"
)

var organizationColumns = []Column{
	{Header: HeaderName, DBColumn: storage.NameColumn, Kind: Text, Required: true},
	{Header: HeaderSport, DBColumn: "sport_id", Kind: Reference, Lookup: storage.Sports},
	{Header: HeaderLevel, DBColumn: "level", Kind: Text},
	{Header: HeaderStreet, DBColumn: "street", Kind: Text},
	{Header: HeaderPostal, DBColumn: "postal", Kind: Text},
	{Header: HeaderCity, DBColumn: "city_id", Kind: Reference, Lookup: storage.Cities},
	{Header: HeaderCountry, DBColumn: "country_id", Kind: Reference, Lookup: storage.Countries},
	{Header: HeaderWebsite, DBColumn: "website", Kind: Text},
	{Header: HeaderPhone, DBColumn: "phone", Kind: Text},
	{Header: HeaderEmail, DBColumn: "email", Kind: Email},
	{Header: HeaderFounded, DBColumn: "founded", Kind: Integer},
	{Header: HeaderRevenue, DBColumn: "revenue", Kind: Decimal},
	{Header: HeaderEmployees, DBColumn: "employees", Kind: Integer},
	{Header: HeaderSocials, DBColumn: "socials", Kind: SocialLinks},
	{Header: HeaderHours, DBColumn: "hours", Kind: OpeningHours},
}

var contactColumns = []Column{
	{Header: HeaderName, DBColumn: storage.NameColumn, Kind: Text, Required: true},
	{Header: HeaderTeam, DBColumn: storage.OrganizationColumn, Kind: Reference, Required: true, Lookup: storage.Organizations},
	{Header: HeaderRole, DBColumn: "role", Kind: Text},
	{Header: HeaderEmail, DBColumn: "email", Kind: Email},
	{Header: HeaderEmailVerified, DBColumn: "email_verified", Kind: Boolean},
	{Header: HeaderPhone, DBColumn: "phone", Kind: Text},
	{Header: HeaderLinkedIn, DBColumn: "linkedin", Kind: Text},
	{Header: HeaderDepartment, DBColumn: "department_id", Kind: Reference, Lookup: storage.Departments, CreateMissing: true},
}

// Columns returns the documented columns of an entity in canonical order.
func Columns(e Entity) []Column {
	if e == Contacts {
		return contactColumns
	}
	return organizationColumns
}

// Lookup finds the documented column for a header, ignoring case and
// surrounding space. "is email verified" and "IS_EMAIL_VERIFIED" both match.
func Lookup(e Entity, header string) (Column, bool) {
	h := foldHeader(header)
	for _, c := range Columns(e) {
		if foldHeader(c.Header) == h {
			return c, true
		}
	}
	return Column{}, false
}

// Required lists the required headers of an entity.
func Required(e Entity) []string {
	var out []string
	for _, c := range Columns(e) {
		if c.Required {
			out = append(out, c.Header)
		}
	}
	return out
}

func foldHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}
