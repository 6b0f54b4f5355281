package historycache

// Policy decides what happens when a background write fails.
type Policy int

const (
	// Lenient keeps the optimistic local state and only logs remote failures.
	Lenient Policy = iota
	// Strict rolls the optimistic mutation back and reports the failure.
	Strict
)

// ParsePolicy maps a config value to a Policy. Unknown values are lenient.
func ParsePolicy(s string) Policy {
	if s == "strict" {
		return Strict
	}
	return Lenient
}

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// LoadState tracks the list as a whole.
type LoadState int

const (
	StateUnknown LoadState = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s LoadState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EntryState tracks a single chat in the local list.
type EntryState int

const (
	// EntryLoaded came from the remote list.
	EntryLoaded EntryState = iota
	// EntryOptimistic was changed locally and the write is not yet confirmed.
	EntryOptimistic
	// EntryReconciled was changed locally and the remote accepted the write.
	EntryReconciled
	// EntryRolledBack was restored after a failed write (strict policy only).
	EntryRolledBack
)

func (s EntryState) String() string {
	switch s {
	case EntryOptimistic:
		return "optimistic"
	case EntryReconciled:
		return "reconciled"
	case EntryRolledBack:
		return "rolled-back"
	default:
		return "loaded"
	}
}
