package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"bulksync/internal/schema"
	"bulksync/internal/storage"
	"bulksync/internal/storage/memory"
)

func TestSelectColumns(t *testing.T) {
	t.Parallel()

	header := []string{"Name", "Email", "is email verified", "Notes", "Team"}

	tests := []struct {
		name     string
		selected []string
		want     []string
		wantErr  error
	}{
		{name: "none", selected: nil, wantErr: ErrNoColumnsSelected},
		{name: "blank_only", selected: []string{" "}, wantErr: ErrNoColumnsSelected},
		{name: "name", selected: []string{"name"}, wantErr: ErrNameNotSelectable},
		{name: "not_in_file", selected: []string{"Phone"}, wantErr: ErrUnknownColumn},
		{name: "undocumented", selected: []string{"Notes"}, wantErr: ErrUnknownColumn},
		{name: "case_insensitive", selected: []string{"EMAIL", "Is_Email_Verified"}, want: []string{"Email", "Is_Email_Verified"}},
		{name: "schema_order_and_dedupe", selected: []string{"team", "Email", "email"}, want: []string{"Team", "Email"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := SelectColumns(schema.Contacts, header, tc.selected)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestUpdate_ValidationFailsBeforeAnyWrite(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	id := repo.Seed(storage.Organizations, map[string]any{"name": "Alpha", "name_key": "alpha", "email": "a@alpha.org"})

	_, err := Update(context.Background(), repo, parseCSV(t, "Name,Email\nAlpha,\n"), UpdateOptions{
		Entity:       schema.Organizations,
		NullifyEmpty: true,
	})
	require.ErrorIs(t, err, ErrNoColumnsSelected)
	require.Equal(t, "a@alpha.org", repo.Get(storage.Organizations, id)["email"])
}

func TestUpdate_TwiceWithoutNullifyIsIdempotent(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	id := repo.Seed(storage.Organizations, map[string]any{
		"name": "Alpha", "name_key": "alpha", "email": "a@alpha.org", "phone": "111",
	})
	tbl := parseCSV(t, "Name,Email,Phone\nAlpha,,222\n")
	opt := UpdateOptions{
		Entity:          schema.Organizations,
		SelectedColumns: []string{"Email", "Phone"},
		RunOptions:      runOpts(10, 2),
	}

	res, err := Update(context.Background(), repo, tbl, opt)
	require.NoError(t, err)
	require.Equal(t, 1, res.Successful)
	once := repo.Get(storage.Organizations, id)

	_, err = Update(context.Background(), repo, tbl, opt)
	require.NoError(t, err)
	twice := repo.Get(storage.Organizations, id)

	require.Equal(t, once, twice)
	require.Equal(t, "a@alpha.org", twice["email"])
	require.Equal(t, "222", twice["phone"])
}

func TestUpdate_NullifyEmpty(t *testing.T) {
	t.Parallel()

	for _, nullify := range []bool{true, false} {
		repo := memory.New()
		id := repo.Seed(storage.Organizations, map[string]any{"name": "Alpha", "name_key": "alpha", "email": "a@alpha.org"})

		res, err := Update(context.Background(), repo, parseCSV(t, "Name,Email\nalpha,\n"), UpdateOptions{
			Entity:          schema.Organizations,
			SelectedColumns: []string{"email"},
			NullifyEmpty:    nullify,
			RunOptions:      runOpts(10, 1),
		})
		require.NoError(t, err)
		require.Equal(t, 1, res.Successful)

		got := repo.Get(storage.Organizations, id)["email"]
		if nullify {
			require.Nil(t, got)
		} else {
			require.Equal(t, "a@alpha.org", got)
		}
	}
}

func TestUpdate_MalformedSocialsCountsAsEmpty(t *testing.T) {
	t.Parallel()

	const stored = `{"x":"https://x.com/a"}`
	for _, nullify := range []bool{true, false} {
		repo := memory.New()
		id := repo.Seed(storage.Organizations, map[string]any{"name": "Alpha", "name_key": "alpha", "socials": stored})

		res, err := Update(context.Background(), repo, parseCSV(t, "Name,Socials\nAlpha,garbage\n"), UpdateOptions{
			Entity:          schema.Organizations,
			SelectedColumns: []string{"Socials"},
			NullifyEmpty:    nullify,
			RunOptions:      runOpts(10, 1),
		})
		require.NoError(t, err)
		require.Equal(t, 1, res.Successful)
		require.Empty(t, res.Errors)

		got := repo.Get(storage.Organizations, id)["socials"]
		if nullify {
			require.Nil(t, got)
		} else {
			require.Equal(t, stored, got)
		}
	}
}

func TestUpdate_OrganizationReferencesAndNotFound(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	rugby := seedLookup(repo, storage.Sports, "Rugby")
	id := repo.Seed(storage.Organizations, map[string]any{"name": "Alpha", "name_key": "alpha"})

	tbl := parseCSV(t, "Name,Sport,Founded\nAlpha,rugby,not a year\nGhost,Rugby,1900\nAlpha,Curling,\n")
	res, err := Update(context.Background(), repo, tbl, UpdateOptions{
		Entity:          schema.Organizations,
		SelectedColumns: []string{"Sport"},
		RunOptions:      runOpts(10, 1),
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Successful)
	require.Equal(t, 1, res.NotFound)
	require.Equal(t, []string{"Ghost"}, res.NotFoundNames)
	require.Equal(t, []string{`row 4 (Alpha): unknown Sport "Curling"`}, res.ErrorStrings())
	require.Equal(t, rugby, repo.Get(storage.Organizations, id)["sport_id"])
}

func TestUpdate_ContactsNotFoundNames(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	org := seedLookup(repo, storage.Organizations, "Alpha")
	for _, n := range []string{"Ann", "Bob", "Cy"} {
		seedContact(repo, n, org, nil)
	}

	tbl := parseCSV(t, "Name,Role\nAnn,Coach\nZed,Coach\nBob,Coach\nYves,Coach\nCy,Coach\n")
	res, err := Update(context.Background(), repo, tbl, UpdateOptions{
		Entity:          schema.Contacts,
		SelectedColumns: []string{"Role"},
		RunOptions:      runOpts(2, 4),
	})
	require.NoError(t, err)
	require.Equal(t, 5, res.Processed)
	require.Equal(t, 3, res.Successful)
	require.Equal(t, 2, res.NotFound)
	require.Equal(t, []string{"Zed", "Yves"}, res.NotFoundNames)
	require.Empty(t, res.Errors)
	require.Equal(t, "Coach", repo.FindByKey(storage.Contacts, "cy")["role"])
}

func TestUpdate_ContactTeamNarrowsMatchCaseInsensitively(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	united := seedLookup(repo, storage.Organizations, "Manchester United")
	city := seedLookup(repo, storage.Organizations, "Manchester City")
	atUnited := seedContact(repo, "Ann Lee", united, nil)
	atCity := seedContact(repo, "Ann Lee", city, nil)

	tbl := parseCSV(t, "Name,Team,Role\nann lee,manchester united,Analyst\nAnn Lee,Nowhere FC,Analyst\nAnn Lee,,Analyst\n")
	res, err := Update(context.Background(), repo, tbl, UpdateOptions{
		Entity:          schema.Contacts,
		SelectedColumns: []string{"Role"},
		RunOptions:      runOpts(10, 1),
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Successful)
	require.Equal(t, []string{
		`row 3 (Ann Lee): no matching team "Nowhere FC"`,
		"row 4 (Ann Lee): " + msgAmbiguousContact,
	}, res.ErrorStrings())

	require.Equal(t, "Analyst", repo.Get(storage.Contacts, atUnited)["role"])
	require.Nil(t, repo.Get(storage.Contacts, atCity)["role"])
}

func TestUpdate_ContactTeamAndDepartment(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	alpha := seedLookup(repo, storage.Organizations, "Alpha")
	beta := seedLookup(repo, storage.Organizations, "Beta")
	ann := seedContact(repo, "Ann", alpha, nil)
	bob := seedContact(repo, "Bob", alpha, nil)

	tbl := parseCSV(t, "Name,Team,Department\nAnn,beta,Medical\nBob,,Medical\n")
	res, err := Update(context.Background(), repo, tbl, UpdateOptions{
		Entity:          schema.Contacts,
		SelectedColumns: []string{"Team", "Department"},
		NullifyEmpty:    true,
		RunOptions:      runOpts(10, 2),
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Successful)
	require.Equal(t, []string{"row 3 (Bob): " + msgClearTeam}, res.ErrorStrings())

	require.Equal(t, beta, repo.Get(storage.Contacts, ann)["organization_id"])
	require.Equal(t, alpha, repo.Get(storage.Contacts, bob)["organization_id"])
	require.Equal(t, 1, repo.Count(storage.Departments))
	require.NotNil(t, repo.Get(storage.Contacts, ann)["department_id"])
}

func TestUpdate_InvalidSelectedCellIsRowError(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	org := seedLookup(repo, storage.Organizations, "Alpha")
	seedContact(repo, "Ann", org, nil)
	seedContact(repo, "Bob", org, nil)

	tbl := parseCSV(t, "Name,Email,Is_Email_Verified\nAnn,not-an-email,maybe\nBob,bob@alpha.org,maybe\n")
	res, err := Update(context.Background(), repo, tbl, UpdateOptions{
		Entity:          schema.Contacts,
		SelectedColumns: []string{"Email"},
		RunOptions:      runOpts(10, 2),
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Successful)
	require.Len(t, res.Errors, 1)
	require.Equal(t, 2, res.Errors[0].Line)
	require.Contains(t, res.Errors[0].Message, "invalid email")
	require.Equal(t, "bob@alpha.org", repo.FindByKey(storage.Contacts, "bob")["email"])
}

func TestUpdate_StartingRowKeepsFileLineNumbers(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	rugby := seedLookup(repo, storage.Sports, "Rugby")
	for _, name := range []string{"A", "B", "C", "D"} {
		seedLookup(repo, storage.Organizations, name)
	}

	tbl := parseCSV(t, "Name,Sport\nA,Rugby\nB,Rugby\nC,Curling\nD,rugby\n")
	res, err := Update(context.Background(), repo, tbl, UpdateOptions{
		Entity:          schema.Organizations,
		SelectedColumns: []string{"Sport"},
		RunOptions:      RunOptions{StartingRow: 4, BatchSize: 1, Workers: 1},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalRows)
	require.Equal(t, 2, res.Processed)
	require.Equal(t, 1, res.Successful)
	require.Equal(t, []string{`row 4 (C): unknown Sport "Curling"`}, res.ErrorStrings())
	require.Nil(t, repo.FindByKey(storage.Organizations, "a")["sport_id"])
	require.Equal(t, rugby, repo.FindByKey(storage.Organizations, "d")["sport_id"])
}
