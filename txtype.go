package tabcache

// TxType selects the consistency level of a data operation.
//
// Safe commits as a fully isolated transaction, durable across the replica
// set; concurrent safe operations on overlapping keys serialize. Dirty runs
// directly against local replica state with no isolation: faster, but a dirty
// write may interleave with concurrent operations and become visible to some
// replicas before others.
type TxType int

const (
	// Safe is the zero value, so it is the default wherever a TxType is omitted.
	Safe TxType = iota
	Dirty
)

func (t TxType) String() string {
	switch t {
	case Safe:
		return "safe"
	case Dirty:
		return "dirty"
	}
	return "unknown"
}
