package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bulksync/internal/model"
	"bulksync/internal/parser"
	"bulksync/internal/progress"
	"bulksync/internal/resolve"
	"bulksync/internal/schema"
	"bulksync/internal/storage"
)

const modeUpdate = "update"

// Update writes the selected columns of tbl onto existing records matched
// by name.
//
// Column selection is validated before anything is written. Rows whose name
// matches nothing are counted as not found, not as errors. For contacts, a
// Team column that is present and not itself being updated narrows the
// match to that team; otherwise a name shared by several contacts is a row
// error.
func Update(ctx context.Context, repo storage.Repository, tbl *parser.Table, opt UpdateOptions) (progress.BatchResult, error) {
	if repo == nil {
		return progress.BatchResult{}, ErrNilRepository
	}
	if tbl == nil {
		return progress.BatchResult{}, ErrNilTable
	}
	if opt.Entity != schema.Organizations && opt.Entity != schema.Contacts {
		return progress.BatchResult{}, fmt.Errorf("update: unknown entity %q", opt.Entity)
	}
	selected, err := selectColumns(opt.Entity, tbl.Header(), opt.SelectedColumns)
	if err != nil {
		return progress.BatchResult{}, err
	}
	ro := opt.RunOptions.withDefaults(opt.Entity)

	bind := schema.Bind(opt.Entity, tbl.Header())
	u := &updater{
		repo:     repo,
		res:      resolve.New(repo),
		entity:   opt.Entity,
		selected: selected,
		nullify:  opt.NullifyEmpty,
		matchByTeam: opt.Entity == schema.Contacts &&
			bind.Has(schema.HeaderTeam) &&
			!selected.has(schema.HeaderTeam),
	}
	return runBatches(ctx, tbl, opt.Entity, modeUpdate, ro, u)
}

// SelectColumns validates a column selection against a file's header row
// and returns the canonical headers selected, in schema order.
func SelectColumns(e schema.Entity, header []string, selected []string) ([]string, error) {
	set, err := selectColumns(e, header, selected)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, c := range schema.Columns(e) {
		if set.has(c.Header) {
			out = append(out, c.Header)
		}
	}
	return out, nil
}

func selectColumns(e schema.Entity, header []string, selected []string) (headerSet, error) {
	out := make(headerSet, len(selected))
	for _, s := range selected {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		col, documented := schema.Lookup(e, s)
		if documented && !col.Updatable() {
			return nil, ErrNameNotSelectable
		}
		if !inHeader(e, header, s) {
			return nil, fmt.Errorf("%w: %q is not in the file's header row", ErrUnknownColumn, s)
		}
		if !documented {
			return nil, fmt.Errorf("%w: %q is not an updatable %s column", ErrUnknownColumn, s, e)
		}
		out[col.Header] = true
	}
	if len(out) == 0 {
		return nil, ErrNoColumnsSelected
	}
	return out, nil
}

func inHeader(e schema.Entity, header []string, s string) bool {
	want, documented := schema.Lookup(e, s)
	for _, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), s) {
			return true
		}
		if documented {
			if c, ok := schema.Lookup(e, h); ok && c.Header == want.Header {
				return true
			}
		}
	}
	return false
}

type updater struct {
	repo        storage.Repository
	res         *resolve.Resolver
	entity      schema.Entity
	selected    headerSet
	nullify     bool
	matchByTeam bool
}

type updateRow struct {
	rec     schema.Record
	org     model.Organization
	contact model.Contact
}

func (u *updater) prepare(ctx context.Context, recs []schema.Record) ([]job, error) {
	jobs := make([]job, len(recs))
	rows := make([]updateRow, len(recs))
	lookups := map[resolve.Kind][]string{}
	var departments []string

	for i, rec := range recs {
		name := displayName(rec.Value(schema.HeaderName))
		jobs[i] = job{line: rec.Line, name: name}
		if name == "" {
			jobs[i].done = failed(rec.Line, name, "missing required column "+schema.HeaderName)
			continue
		}
		rows[i].rec = rec

		var err error
		if u.entity == schema.Organizations {
			rows[i].org, err = decodeOrganization(rec, u.selected)
			o := rows[i].org
			lookups[resolve.Organization] = append(lookups[resolve.Organization], o.Name)
			if u.selected.has(schema.HeaderSport) {
				lookups[resolve.Sport] = append(lookups[resolve.Sport], o.Sport)
			}
			if u.selected.has(schema.HeaderCity) {
				lookups[resolve.City] = append(lookups[resolve.City], o.City)
			}
			if u.selected.has(schema.HeaderCountry) {
				lookups[resolve.Country] = append(lookups[resolve.Country], o.Country)
			}
			jobs[i].lane = model.NameKey(o.Name)
		} else {
			rows[i].contact, err = decodeContact(rec, u.selected)
			c := rows[i].contact
			lookups[resolve.Organization] = append(lookups[resolve.Organization], c.Team)
			if u.selected.has(schema.HeaderDepartment) && c.Department != "" {
				departments = append(departments, c.Department)
			}
			jobs[i].lane = model.NameKey(c.Name)
		}
		if err != nil {
			jobs[i].done = failed(rec.Line, name, err.Error())
		}
	}

	for kind, names := range lookups {
		if err := u.res.Prefetch(ctx, kind, names); err != nil {
			return nil, err
		}
	}
	if len(departments) > 0 {
		if err := u.res.EnsureDepartments(ctx, departments); err != nil {
			return nil, err
		}
	}

	var idx *contactIndex
	if u.entity == schema.Contacts {
		var err error
		if idx, err = loadContacts(ctx, u.repo, recs); err != nil {
			return nil, err
		}
	}

	for i := range jobs {
		if jobs[i].done != nil {
			continue
		}
		row := rows[i]
		jobs[i].run = func(ctx context.Context) progress.Outcome {
			if u.entity == schema.Organizations {
				return u.writeOrganization(ctx, row)
			}
			return u.writeContact(ctx, idx, row)
		}
	}
	return jobs, nil
}

func (u *updater) writeOrganization(ctx context.Context, row updateRow) progress.Outcome {
	o := row.org
	id, ok, err := u.res.Resolve(ctx, resolve.Organization, o.Name)
	if err != nil {
		return progress.Outcome{Status: progress.Failed, Message: err.Error()}
	}
	if !ok {
		return progress.Outcome{Status: progress.NotFound}
	}
	names := map[string]string{
		schema.HeaderSport:   o.Sport,
		schema.HeaderCity:    o.City,
		schema.HeaderCountry: o.Country,
	}
	return u.apply(ctx, storage.Organizations, id, row.rec, names, func(refs refIDs) func(string) any {
		return func(h string) any { return organizationValue(o, refs, h) }
	})
}

func (u *updater) writeContact(ctx context.Context, idx *contactIndex, row updateRow) progress.Outcome {
	c := row.contact
	key := model.NameKey(c.Name)

	var target storage.ContactRef
	if u.matchByTeam && c.Team != "" {
		orgID, err := u.res.MustResolve(ctx, resolve.Organization, c.Team)
		if err != nil {
			return progress.Outcome{Status: progress.Failed, Message: err.Error()}
		}
		ref, ok := idx.find(key, orgID)
		if !ok {
			return progress.Outcome{Status: progress.NotFound}
		}
		target = ref
	} else {
		refs := idx.named(key)
		switch len(refs) {
		case 0:
			return progress.Outcome{Status: progress.NotFound}
		case 1:
			target = refs[0]
		default:
			return progress.Outcome{Status: progress.Failed, Message: msgAmbiguousContact}
		}
	}

	names := map[string]string{
		schema.HeaderTeam:       c.Team,
		schema.HeaderDepartment: c.Department,
	}
	return u.apply(ctx, storage.Contacts, target.ID, row.rec, names, func(refs refIDs) func(string) any {
		return func(h string) any { return contactValue(c, refs, h) }
	})
}

// apply writes the selected columns of one matched row. Blank cells become
// NULL under NullifyEmpty and are left alone otherwise.
func (u *updater) apply(ctx context.Context, table string, id int64, rec schema.Record, names map[string]string, values func(refIDs) func(string) any) progress.Outcome {
	write := make(headerSet, len(u.selected))
	for h := range u.selected {
		if blankCell(rec, h) {
			if !u.nullify {
				continue
			}
			if h == schema.HeaderTeam {
				return progress.Outcome{Status: progress.Failed, Message: msgClearTeam}
			}
		}
		write[h] = true
	}
	if len(write) == 0 {
		return progress.Outcome{Status: progress.Succeeded}
	}

	refs, err := resolveRefs(ctx, u.res, u.entity, write, names)
	if err != nil {
		return progress.Outcome{Status: progress.Failed, Message: err.Error()}
	}
	cols, vals := writeSet(u.entity, write, values(refs))
	if err := u.repo.UpdateRecord(ctx, table, id, cols, vals); err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return progress.Outcome{Status: progress.NotFound}
		}
		return progress.Outcome{Status: progress.Failed, Message: "write rejected: " + err.Error()}
	}
	return progress.Outcome{Status: progress.Succeeded}
}
