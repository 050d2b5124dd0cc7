package table

// Relation is an advisory foreign reference from a field on the owning
// table to a field on another table. Nothing in this package enforces
// referential integrity; relations are metadata consulted by callers,
// since this store has no schema-level constraint enforcement.
type Relation struct {
	FromField string
	ToTable   string
	ToField   string
}
