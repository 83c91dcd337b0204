package schema

import "bulksync/internal/storage"

func notNull() *bool { v := false; return &v }

func lookupTable(name string) storage.TableSpec {
	return storage.TableSpec{
		Name:            name,
		AutoCreateTable: true,
		PrimaryKey:      &storage.PrimaryKeySpec{Name: storage.IDColumn, Type: "serial"},
		Columns: []storage.ColumnSpec{
			{Name: storage.NameColumn, Type: storage.TypeKey, Nullable: notNull()},
			{Name: storage.KeyColumn, Type: storage.TypeKey, Nullable: notNull()},
		},
		Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{storage.KeyColumn}}},
	}
}

func ref(table string) string { return table + "(" + storage.IDColumn + ")" }

// Tables returns the storage tables in dependency order (lookups first).
func Tables() []storage.TableSpec {
	return []storage.TableSpec{
		lookupTable(storage.Sports),
		lookupTable(storage.Countries),
		lookupTable(storage.Cities),
		lookupTable(storage.Departments),
		{
			Name:            storage.Organizations,
			AutoCreateTable: true,
			PrimaryKey:      &storage.PrimaryKeySpec{Name: storage.IDColumn, Type: "serial"},
			Columns: []storage.ColumnSpec{
				{Name: storage.NameColumn, Type: storage.TypeKey, Nullable: notNull()},
				{Name: storage.KeyColumn, Type: storage.TypeKey, Nullable: notNull()},
				{Name: "sport_id", Type: storage.TypeBigint, References: ref(storage.Sports)},
				{Name: "level", Type: storage.TypeText},
				{Name: "street", Type: storage.TypeText},
				{Name: "postal", Type: storage.TypeText},
				{Name: "city_id", Type: storage.TypeBigint, References: ref(storage.Cities)},
				{Name: "country_id", Type: storage.TypeBigint, References: ref(storage.Countries)},
				{Name: "website", Type: storage.TypeText},
				{Name: "phone", Type: storage.TypeText},
				{Name: "email", Type: storage.TypeText},
				{Name: "founded", Type: storage.TypeBigint},
				{Name: "revenue", Type: storage.TypeDouble},
				{Name: "employees", Type: storage.TypeBigint},
				{Name: "socials", Type: storage.TypeText},
				{Name: "hours", Type: storage.TypeText},
			},
			Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{storage.KeyColumn}}},
		},
		{
			Name:            storage.Contacts,
			AutoCreateTable: true,
			PrimaryKey:      &storage.PrimaryKeySpec{Name: storage.IDColumn, Type: "serial"},
			Columns: []storage.ColumnSpec{
				{Name: storage.NameColumn, Type: storage.TypeKey, Nullable: notNull()},
				{Name: storage.KeyColumn, Type: storage.TypeKey, Nullable: notNull()},
				{Name: storage.OrganizationColumn, Type: storage.TypeBigint, Nullable: notNull(), References: ref(storage.Organizations)},
				{Name: "role", Type: storage.TypeText},
				{Name: "email", Type: storage.TypeText},
				{Name: "email_verified", Type: storage.TypeBoolean},
				{Name: "phone", Type: storage.TypeText},
				{Name: "linkedin", Type: storage.TypeText},
				{Name: "department_id", Type: storage.TypeBigint, References: ref(storage.Departments)},
			},
			Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{storage.KeyColumn, storage.OrganizationColumn}}},
		},
	}
}
