package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"bulksync/internal/emailparser"
	"bulksync/internal/model"
	"bulksync/internal/schema"
	"bulksync/internal/storage"
)

// headerSet is the set of canonical headers a run decodes and writes.
type headerSet map[string]bool

func (h headerSet) has(header string) bool { return h[header] }

// presentHeaders returns every documented header the file carries.
func presentHeaders(b schema.Binding) headerSet {
	out := make(headerSet)
	for _, c := range schema.Columns(b.Entity) {
		if b.Has(c.Header) {
			out[c.Header] = true
		}
	}
	return out
}

// cellError is a decode failure attributed to one column.
type cellError struct {
	Header string
	Err    error
}

func (e *cellError) Error() string { return e.Header + ": " + e.Err.Error() }
func (e *cellError) Unwrap() error { return e.Err }

func text(rec schema.Record, header string) string {
	return strings.TrimSpace(rec.Value(header))
}

// displayName collapses whitespace runs so stored names match their key.
func displayName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func intCell(rec schema.Record, header string) (*int64, error) {
	raw := text(rec, header)
	if raw == "" {
		return nil, nil
	}
	n, err := model.ParseInt(raw)
	if err != nil {
		return nil, &cellError{Header: header, Err: err}
	}
	return &n, nil
}

func decimalCell(rec schema.Record, header string) (*float64, error) {
	raw := text(rec, header)
	if raw == "" {
		return nil, nil
	}
	f, err := model.ParseDecimal(raw)
	if err != nil {
		return nil, &cellError{Header: header, Err: err}
	}
	return &f, nil
}

func boolCell(rec schema.Record, header string) (*bool, error) {
	raw := text(rec, header)
	if raw == "" {
		return nil, nil
	}
	v, ok := model.ParseBool(raw)
	if !ok {
		return nil, &cellError{Header: header, Err: fmt.Errorf("invalid boolean %q (want true/false, 1/0, yes/no)", raw)}
	}
	return &v, nil
}

func emailCell(rec schema.Record, header string) (string, error) {
	raw := text(rec, header)
	e, err := emailparser.Normalize(raw)
	if errors.Is(err, emailparser.ErrInvalid) {
		return "", &cellError{Header: header, Err: fmt.Errorf("invalid email %q", raw)}
	}
	return e, err
}

// decodeOrganization decodes the cells of rec listed in want. Cells outside
// want are ignored, so a malformed column that is not being written never
// fails the row.
func decodeOrganization(rec schema.Record, want headerSet) (model.Organization, error) {
	o := model.Organization{
		Name:    displayName(rec.Value(schema.HeaderName)),
		Sport:   displayName(rec.Value(schema.HeaderSport)),
		Level:   text(rec, schema.HeaderLevel),
		Street:  text(rec, schema.HeaderStreet),
		Postal:  text(rec, schema.HeaderPostal),
		City:    displayName(rec.Value(schema.HeaderCity)),
		Country: displayName(rec.Value(schema.HeaderCountry)),
		Website: text(rec, schema.HeaderWebsite),
		Phone:   text(rec, schema.HeaderPhone),
	}

	var err error
	if want.has(schema.HeaderEmail) {
		if o.Email, err = emailCell(rec, schema.HeaderEmail); err != nil {
			return o, err
		}
	}
	if want.has(schema.HeaderFounded) {
		if o.Founded, err = intCell(rec, schema.HeaderFounded); err != nil {
			return o, err
		}
	}
	if want.has(schema.HeaderRevenue) {
		if o.Revenue, err = decimalCell(rec, schema.HeaderRevenue); err != nil {
			return o, err
		}
	}
	if want.has(schema.HeaderEmployees) {
		if o.Employees, err = intCell(rec, schema.HeaderEmployees); err != nil {
			return o, err
		}
	}
	if want.has(schema.HeaderSocials) {
		o.Socials = model.ParseSocials(rec.Value(schema.HeaderSocials))
	}
	if want.has(schema.HeaderHours) {
		o.Hours = model.ParseHours(rec.Value(schema.HeaderHours))
	}
	return o, nil
}

func decodeContact(rec schema.Record, want headerSet) (model.Contact, error) {
	c := model.Contact{
		Name:       displayName(rec.Value(schema.HeaderName)),
		Team:       displayName(rec.Value(schema.HeaderTeam)),
		Role:       text(rec, schema.HeaderRole),
		Phone:      text(rec, schema.HeaderPhone),
		LinkedIn:   text(rec, schema.HeaderLinkedIn),
		Department: displayName(rec.Value(schema.HeaderDepartment)),
	}

	var err error
	if want.has(schema.HeaderEmail) {
		if c.Email, err = emailCell(rec, schema.HeaderEmail); err != nil {
			return c, err
		}
	}
	if want.has(schema.HeaderEmailVerified) {
		if c.EmailVerified, err = boolCell(rec, schema.HeaderEmailVerified); err != nil {
			return c, err
		}
	}
	return c, nil
}

// refIDs holds resolved reference ids by canonical header. A header with
// no entry is written as NULL.
type refIDs map[string]int64

func (r refIDs) value(header string) any {
	if id, ok := r[header]; ok {
		return id
	}
	return nil
}

func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// organizationValue is the storage value of one column. nil writes NULL.
func organizationValue(o model.Organization, refs refIDs, header string) any {
	switch header {
	case schema.HeaderName:
		return o.Name
	case schema.HeaderSport, schema.HeaderCity, schema.HeaderCountry:
		return refs.value(header)
	case schema.HeaderLevel:
		return nullText(o.Level)
	case schema.HeaderStreet:
		return nullText(o.Street)
	case schema.HeaderPostal:
		return nullText(o.Postal)
	case schema.HeaderWebsite:
		return nullText(o.Website)
	case schema.HeaderPhone:
		return nullText(o.Phone)
	case schema.HeaderEmail:
		return nullText(o.Email)
	case schema.HeaderFounded:
		return int64Value(o.Founded)
	case schema.HeaderRevenue:
		if o.Revenue == nil {
			return nil
		}
		return *o.Revenue
	case schema.HeaderEmployees:
		return int64Value(o.Employees)
	case schema.HeaderSocials:
		return nullText(o.Socials.JSON())
	case schema.HeaderHours:
		return nullText(o.Hours.JSON())
	default:
		return nil
	}
}

func contactValue(c model.Contact, refs refIDs, header string) any {
	switch header {
	case schema.HeaderName:
		return c.Name
	case schema.HeaderTeam, schema.HeaderDepartment:
		return refs.value(header)
	case schema.HeaderRole:
		return nullText(c.Role)
	case schema.HeaderEmail:
		return nullText(c.Email)
	case schema.HeaderEmailVerified:
		if c.EmailVerified == nil {
			return nil
		}
		return *c.EmailVerified
	case schema.HeaderPhone:
		return nullText(c.Phone)
	case schema.HeaderLinkedIn:
		return nullText(c.LinkedIn)
	default:
		return nil
	}
}

func int64Value(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

// writeSet builds the column/value lists for headers, in schema order.
// Writing Name also writes its name_key.
func writeSet(e schema.Entity, headers headerSet, value func(header string) any) ([]string, []any) {
	cols := make([]string, 0, len(headers)+1)
	vals := make([]any, 0, len(headers)+1)
	for _, c := range schema.Columns(e) {
		if !headers.has(c.Header) {
			continue
		}
		v := value(c.Header)
		cols = append(cols, c.DBColumn)
		vals = append(vals, v)
		if c.Header == schema.HeaderName {
			cols = append(cols, storage.KeyColumn)
			vals = append(vals, model.NameKey(fmt.Sprint(v)))
		}
	}
	return cols, vals
}

// blankCell reports whether a cell has nothing to write. A Socials or Hours
// cell whose every segment is malformed counts as blank.
func blankCell(rec schema.Record, header string) bool {
	raw := text(rec, header)
	switch header {
	case schema.HeaderSocials:
		return model.ParseSocials(raw) == nil
	case schema.HeaderHours:
		return model.ParseHours(raw) == nil
	default:
		return raw == ""
	}
}

// withoutMalformed drops Socials and Hours from headers when rec holds text
// there that decodes to nothing, so an overwrite leaves the stored value.
func withoutMalformed(headers headerSet, rec schema.Record) headerSet {
	out := headers
	for _, h := range []string{schema.HeaderSocials, schema.HeaderHours} {
		if !headers.has(h) || text(rec, h) == "" || !blankCell(rec, h) {
			continue
		}
		if len(out) == len(headers) {
			out = make(headerSet, len(headers))
			for k, v := range headers {
				out[k] = v
			}
		}
		delete(out, h)
	}
	return out
}

// missingRequired returns the first required header that is absent or
// blank in rec.
func missingRequired(e schema.Entity, rec schema.Record) (string, bool) {
	for _, h := range schema.Required(e) {
		if v, ok := rec.Get(h); !ok || strings.TrimSpace(v) == "" {
			return h, true
		}
	}
	return "", false
}
