package model

// OperatorKind groups filter operators a field may accept.
type OperatorKind uint8

const (
	KindEquality OperatorKind = 1 << iota
	KindRange
	KindSet
	KindBoolean
)

// Has reports whether every kind in other is present.
func (k OperatorKind) Has(other OperatorKind) bool {
	return k&other == other
}

// SortDirection orders list results.
type SortDirection string

const (
	Ascending  SortDirection = "ASC"
	Descending SortDirection = "DESC"
)

// Field describes one persisted column.
type Field struct {
	Name      string
	Column    string
	Exposed   bool
	Operators OperatorKind
}

// Filterable reports whether any operator kind is declared.
func (f Field) Filterable() bool {
	return f.Operators != 0
}

// Reference names a table whose rows point at this entity and block its deletion.
type Reference struct {
	Table  string
	Column string
}

// ForeignKey names a local column that must point at an existing row of Table.
type ForeignKey struct {
	Column string
	Table  string
}

// Descriptor declares the storage shape of an entity.
type Descriptor struct {
	Entity       string
	Table        string
	Fields       []Field
	DefaultSort  string
	DefaultDir   SortDirection
	Cached       bool
	ForeignKeys  []ForeignKey
	ReferencedBy []Reference
	fieldsByName map[string]Field
}

func newDescriptor(d Descriptor) *Descriptor {
	fields := make([]Field, len(d.Fields))
	d.fieldsByName = make(map[string]Field, len(d.Fields))
	for i, field := range d.Fields {
		if field.Column == "" {
			field.Column = field.Name
		}
		fields[i] = field
		d.fieldsByName[field.Name] = field
	}
	d.Fields = fields
	if d.DefaultSort == "" {
		d.DefaultSort = "id"
	}
	if d.DefaultDir == "" {
		d.DefaultDir = Ascending
	}
	return &d
}

// Field looks up a declared field by name.
func (d *Descriptor) Field(name string) (Field, bool) {
	field, ok := d.fieldsByName[name]
	return field, ok
}

// ExposedFields returns the names of fields serialized outward, in declaration order.
func (d *Descriptor) ExposedFields() []string {
	names := make([]string, 0, len(d.Fields))
	for _, field := range d.Fields {
		if field.Exposed {
			names = append(names, field.Name)
		}
	}
	return names
}
