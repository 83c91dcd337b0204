package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"bulksync/internal/model"
	"bulksync/internal/parser"
	"bulksync/internal/resolve"
	"bulksync/internal/schema"
	"bulksync/internal/storage"
)

// Conflict is a row whose natural key is already taken, either by a stored
// record or by an earlier row of the same file.
type Conflict struct {
	Line int    `yaml:"row"`
	Name string `yaml:"name"`
	Team string `yaml:"team,omitempty"`
	// ExistingID is the stored record the row collides with, if any.
	ExistingID int64 `yaml:"existing_id,omitempty"`
	// DuplicateOf is the earlier row with the same key, if any.
	DuplicateOf int    `yaml:"duplicate_of,omitempty"`
	Action      Action `yaml:"action"`
}

// DetectConflicts lists the rows of tbl that an upload would treat as
// conflicts, so a caller can decide each one before the run. Nothing is
// written. Rows that would fail validation are not listed.
func DetectConflicts(ctx context.Context, repo storage.Repository, tbl *parser.Table, entity schema.Entity, startingRow int) ([]Conflict, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}
	if tbl == nil {
		return nil, ErrNilTable
	}
	if entity != schema.Organizations && entity != schema.Contacts {
		return nil, fmt.Errorf("conflicts: unknown entity %q", entity)
	}

	res := resolve.New(repo)
	bind := schema.Bind(entity, tbl.Header())
	firstLine := make(map[string]int)
	var out []Conflict

	it := tbl.Rows(startingRow)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows := it.Take(entity.DefaultBatchSize())
		if len(rows) == 0 {
			return out, nil
		}
		recs := make([]schema.Record, len(rows))
		names := make([]string, len(rows))
		teams := make([]string, len(rows))
		for i, r := range rows {
			recs[i] = bind.Record(r.Line, r.Values)
			names[i] = displayName(recs[i].Value(schema.HeaderName))
			teams[i] = displayName(recs[i].Value(schema.HeaderTeam))
		}

		var idx *contactIndex
		var err error
		if entity == schema.Organizations {
			err = res.Prefetch(ctx, resolve.Organization, names)
		} else {
			if err = res.Prefetch(ctx, resolve.Organization, teams); err == nil {
				idx, err = loadContacts(ctx, repo, recs)
			}
		}
		if err != nil {
			return nil, err
		}

		for i, rec := range recs {
			if _, missing := missingRequired(entity, rec); missing {
				continue
			}
			c := Conflict{Line: rec.Line, Name: names[i], Action: ActionSkip}
			key := model.NameKey(names[i])

			if entity == schema.Organizations {
				id, ok, err := res.Resolve(ctx, resolve.Organization, names[i])
				if err != nil {
					return nil, err
				}
				if ok {
					c.ExistingID = id
				}
			} else {
				c.Team = teams[i]
				orgID, ok, err := res.Resolve(ctx, resolve.Organization, teams[i])
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				if ref, found := idx.find(key, orgID); found {
					c.ExistingID = ref.ID
				}
				key += "\x00" + strconv.FormatInt(orgID, 10)
			}

			if prev, seen := firstLine[key]; seen {
				c.DuplicateOf = prev
			} else {
				firstLine[key] = rec.Line
			}
			if c.ExistingID != 0 || c.DuplicateOf != 0 {
				out = append(out, c)
			}
		}
	}
}

// ConflictFile is the editable YAML form of a conflict list.
type ConflictFile struct {
	Entity    schema.Entity `yaml:"entity"`
	Default   Action        `yaml:"default"`
	Conflicts []Conflict    `yaml:"conflicts"`
}

// MarshalConflicts renders conflicts as a ConflictFile whose actions all
// default to skip.
func MarshalConflicts(entity schema.Entity, conflicts []Conflict) ([]byte, error) {
	f := ConflictFile{Entity: entity, Default: ActionSkip, Conflicts: conflicts}
	if f.Conflicts == nil {
		f.Conflicts = []Conflict{}
	}
	return yaml.Marshal(f)
}

// ParseConflictFile reads an edited ConflictFile back into instructions.
func ParseConflictFile(data []byte) (ConflictInstructions, error) {
	var f ConflictFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return ConflictInstructions{}, fmt.Errorf("parse conflict file: %w", err)
	}
	def, err := ParseAction(string(f.Default))
	if err != nil {
		return ConflictInstructions{}, fmt.Errorf("conflict file default: %w", err)
	}
	ci := ConflictInstructions{Default: def, Rows: make(map[int]Action, len(f.Conflicts))}
	for _, c := range f.Conflicts {
		if c.Line < 2 {
			return ConflictInstructions{}, fmt.Errorf("conflict file: invalid row %d", c.Line)
		}
		if strings.TrimSpace(string(c.Action)) == "" {
			continue
		}
		a, err := ParseAction(string(c.Action))
		if err != nil {
			return ConflictInstructions{}, fmt.Errorf("conflict file row %d: %w", c.Line, err)
		}
		ci.Rows[c.Line] = a
	}
	return ci, nil
}
