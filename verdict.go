package imagedup

// VerdictKind is the classification outcome category for one input item.
type VerdictKind int

const (
	VerdictUnique VerdictKind = iota
	VerdictDuplicate
	VerdictSkipped
)

// String returns the lowercase name of the verdict kind.
func (k VerdictKind) String() string {
	switch k {
	case VerdictUnique:
		return "unique"
	case VerdictDuplicate:
		return "duplicate"
	case VerdictSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// SkipReason explains why an item was skipped without consulting the
// classifier. Skips are always local: one bad image never aborts the run.
type SkipReason string

const (
	// SkipDecode marks a corrupt, truncated, or unsupported image.
	SkipDecode SkipReason = "decode_failure"
	// SkipOversize marks an item exceeding the configured size cap.
	SkipOversize SkipReason = "oversize"
	// SkipTimeout marks an item whose processing exceeded Config.ItemTimeout.
	SkipTimeout SkipReason = "timeout"
)

// Verdict is the classification outcome for one input item.
type Verdict struct {
	ID             string
	Kind           VerdictKind
	Representative string     // set for VerdictDuplicate: the accepted image it matched
	Reason         SkipReason // set for VerdictSkipped
}
