package txn

// opKind is the kind of a logged staging operation.
type opKind int

const (
	opCreate opKind = iota
	opUpdate
	opDelete
)

// logEntry records one staged mutation against a table's staging buffer,
// enough to describe it to a WAL writer or a conflict-detection pass
// without re-deriving it from the staged bytes.
type logEntry struct {
	kind       opKind
	offset     uint64
	oldBytes   []byte // nil for Create
	newBytes   []byte // nil for Delete
}
