// To keep backends generic, the TableSpec types live here where both the
// schema package and backend packages can import them without cycles.
package storage

// Column types are logical; each backend maps them to its own DDL type.
const (
	TypeKey     = "key"  // short indexed text (names, name keys)
	TypeText    = "text" // unbounded text
	TypeBigint  = "bigint"
	TypeDouble  = "double"
	TypeBoolean = "boolean"
)

// Well-known column names shared by every synced table.
const (
	IDColumn           = "id"
	NameColumn         = "name"
	KeyColumn          = "name_key"
	OrganizationColumn = "organization_id"
)

// Tables written by the sync pipelines.
const (
	Sports        = "sports"
	Countries     = "countries"
	Cities        = "cities"
	Departments   = "departments"
	Organizations = "organizations"
	Contacts      = "contacts"
)

type TableSpec struct {
	Name            string           `json:"name"`
	AutoCreateTable bool             `json:"auto_create_table"`
	PrimaryKey      *PrimaryKeySpec  `json:"primary_key,omitempty"`
	Columns         []ColumnSpec     `json:"columns"`
	Constraints     []ConstraintSpec `json:"constraints,omitempty"`
}

type PrimaryKeySpec struct {
	Name string `json:"name"`
	Type string `json:"type"` // serial / bigserial / identity
}

type ColumnSpec struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	References string `json:"references,omitempty"`
	Nullable   *bool  `json:"nullable,omitempty"`
}

type ConstraintSpec struct {
	Kind    string   `json:"kind"` // "unique"
	Columns []string `json:"columns"`
}
