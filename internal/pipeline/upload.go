package pipeline

import (
	"context"
	"fmt"

	"bulksync/internal/model"
	"bulksync/internal/parser"
	"bulksync/internal/progress"
	"bulksync/internal/resolve"
	"bulksync/internal/schema"
	"bulksync/internal/storage"
)

const modeUpload = "upload"

// Upload inserts the rows of tbl as new records of opt.Entity.
//
// A row whose natural key already exists (organizations: name; contacts:
// name within a team) is skipped or overwritten according to
// opt.Conflicts. Row failures are recorded in the result and never stop the
// run. The returned error is non-nil only for failures that stop the whole
// run, such as a lost database connection.
func Upload(ctx context.Context, repo storage.Repository, tbl *parser.Table, opt UploadOptions) (progress.BatchResult, error) {
	if repo == nil {
		return progress.BatchResult{}, ErrNilRepository
	}
	if tbl == nil {
		return progress.BatchResult{}, ErrNilTable
	}
	ro := opt.RunOptions.withDefaults(opt.Entity)

	base := uploader{
		repo:      repo,
		res:       resolve.New(repo),
		headers:   presentHeaders(schema.Bind(opt.Entity, tbl.Header())),
		conflicts: opt.Conflicts,
	}

	var h batchHandler
	switch opt.Entity {
	case schema.Organizations:
		h = &organizationUpload{uploader: base}
	case schema.Contacts:
		h = &contactUpload{uploader: base}
	default:
		return progress.BatchResult{}, fmt.Errorf("upload: unknown entity %q", opt.Entity)
	}
	return runBatches(ctx, tbl, opt.Entity, modeUpload, ro, h)
}

type uploader struct {
	repo      storage.Repository
	res       *resolve.Resolver
	headers   headerSet
	conflicts ConflictInstructions
}

// conflict applies the conflict policy to an existing record.
func (u *uploader) conflict(ctx context.Context, table string, line int, id int64, cols []string, vals []any) progress.Outcome {
	if u.conflicts.For(line) != ActionOverwrite {
		return progress.Outcome{Status: progress.Skipped, Message: "already exists"}
	}
	if err := u.repo.UpdateRecord(ctx, table, id, cols, vals); err != nil {
		return progress.Outcome{Status: progress.Failed, Message: "write rejected: " + err.Error()}
	}
	return progress.Outcome{Status: progress.Succeeded}
}

// resolveRefs resolves every reference cell in headers. Read-only lookups
// fail closed; departments are created on demand.
func resolveRefs(ctx context.Context, res *resolve.Resolver, e schema.Entity, headers headerSet, names map[string]string) (refIDs, error) {
	refs := make(refIDs)
	for _, c := range schema.Columns(e) {
		if c.Kind != schema.Reference || !headers.has(c.Header) {
			continue
		}
		name := names[c.Header]
		if name == "" {
			continue
		}
		var (
			id  int64
			err error
		)
		if c.CreateMissing {
			id, err = res.ResolveDepartment(ctx, name)
		} else {
			id, err = res.MustResolve(ctx, resolve.Kind(c.Lookup), name)
		}
		if err != nil {
			return nil, err
		}
		refs[c.Header] = id
	}
	return refs, nil
}

type organizationUpload struct {
	uploader
}

func (u *organizationUpload) prepare(ctx context.Context, recs []schema.Record) ([]job, error) {
	jobs := make([]job, len(recs))
	orgs := make([]model.Organization, len(recs))
	lookups := map[resolve.Kind][]string{}

	for i, rec := range recs {
		name := displayName(rec.Value(schema.HeaderName))
		jobs[i] = job{line: rec.Line, name: name}
		if h, missing := missingRequired(schema.Organizations, rec); missing {
			jobs[i].done = failed(rec.Line, name, "missing required column "+h)
			continue
		}
		o, err := decodeOrganization(rec, u.headers)
		if err != nil {
			jobs[i].done = failed(rec.Line, name, err.Error())
			continue
		}
		orgs[i] = o
		lookups[resolve.Organization] = append(lookups[resolve.Organization], o.Name)
		lookups[resolve.Sport] = append(lookups[resolve.Sport], o.Sport)
		lookups[resolve.City] = append(lookups[resolve.City], o.City)
		lookups[resolve.Country] = append(lookups[resolve.Country], o.Country)
	}

	for kind, names := range lookups {
		if err := u.res.Prefetch(ctx, kind, names); err != nil {
			return nil, err
		}
	}

	for i := range jobs {
		if jobs[i].done != nil {
			continue
		}
		o, line := orgs[i], jobs[i].line
		headers := withoutMalformed(u.headers, recs[i])
		jobs[i].lane = model.NameKey(o.Name)
		jobs[i].run = func(ctx context.Context) progress.Outcome {
			return u.write(ctx, line, o, headers)
		}
	}
	return jobs, nil
}

func (u *organizationUpload) write(ctx context.Context, line int, o model.Organization, headers headerSet) progress.Outcome {
	refs, err := resolveRefs(ctx, u.res, schema.Organizations, headers, map[string]string{
		schema.HeaderSport:   o.Sport,
		schema.HeaderCity:    o.City,
		schema.HeaderCountry: o.Country,
	})
	if err != nil {
		return progress.Outcome{Status: progress.Failed, Message: err.Error()}
	}
	cols, vals := writeSet(schema.Organizations, headers, func(h string) any {
		return organizationValue(o, refs, h)
	})

	id, exists, err := u.res.Resolve(ctx, resolve.Organization, o.Name)
	if err != nil {
		return progress.Outcome{Status: progress.Failed, Message: err.Error()}
	}
	if exists {
		return u.conflict(ctx, storage.Organizations, line, id, cols, vals)
	}

	id, err = u.repo.InsertRecord(ctx, storage.Organizations, cols, vals)
	if err != nil {
		return progress.Outcome{Status: progress.Failed, Message: "write rejected: " + err.Error()}
	}
	u.res.Remember(resolve.Organization, o.Name, id)
	return progress.Outcome{Status: progress.Succeeded}
}

type contactUpload struct {
	uploader
}

func (u *contactUpload) prepare(ctx context.Context, recs []schema.Record) ([]job, error) {
	jobs := make([]job, len(recs))
	contacts := make([]model.Contact, len(recs))
	var teams, departments []string

	for i, rec := range recs {
		name := displayName(rec.Value(schema.HeaderName))
		jobs[i] = job{line: rec.Line, name: name}
		if h, missing := missingRequired(schema.Contacts, rec); missing {
			jobs[i].done = failed(rec.Line, name, "missing required column "+h)
			continue
		}
		c, err := decodeContact(rec, u.headers)
		if err != nil {
			jobs[i].done = failed(rec.Line, name, err.Error())
			continue
		}
		contacts[i] = c
		teams = append(teams, c.Team)
		if c.Department != "" {
			departments = append(departments, c.Department)
		}
	}

	if err := u.res.Prefetch(ctx, resolve.Organization, teams); err != nil {
		return nil, err
	}
	if u.headers.has(schema.HeaderDepartment) {
		if err := u.res.EnsureDepartments(ctx, departments); err != nil {
			return nil, err
		}
	}
	idx, err := loadContacts(ctx, u.repo, recs)
	if err != nil {
		return nil, err
	}

	for i := range jobs {
		if jobs[i].done != nil {
			continue
		}
		c, line := contacts[i], jobs[i].line
		jobs[i].lane = model.NameKey(c.Name) + "\x00" + model.NameKey(c.Team)
		jobs[i].run = func(ctx context.Context) progress.Outcome {
			return u.write(ctx, idx, line, c)
		}
	}
	return jobs, nil
}

func (u *contactUpload) write(ctx context.Context, idx *contactIndex, line int, c model.Contact) progress.Outcome {
	refs, err := resolveRefs(ctx, u.res, schema.Contacts, u.headers, map[string]string{
		schema.HeaderTeam:       c.Team,
		schema.HeaderDepartment: c.Department,
	})
	if err != nil {
		return progress.Outcome{Status: progress.Failed, Message: err.Error()}
	}
	cols, vals := writeSet(schema.Contacts, u.headers, func(h string) any {
		return contactValue(c, refs, h)
	})

	key := model.NameKey(c.Name)
	orgID := refs[schema.HeaderTeam]
	if ref, ok := idx.find(key, orgID); ok {
		return u.conflict(ctx, storage.Contacts, line, ref.ID, cols, vals)
	}

	id, err := u.repo.InsertRecord(ctx, storage.Contacts, cols, vals)
	if err != nil {
		return progress.Outcome{Status: progress.Failed, Message: "write rejected: " + err.Error()}
	}
	idx.add(storage.ContactRef{ID: id, NameKey: key, OrganizationID: orgID})
	return progress.Outcome{Status: progress.Succeeded}
}
