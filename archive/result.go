package archive

// Result is the per-class outcome of archived static restoration.
//
// NotAttempted -> Restored | Skipped. Both outcomes are terminal; a restored
// class is never re-derived and a skipped class is never retried.
type Result uint8

const (
	// NotAttempted is the state before restoration runs, and the answer
	// when restoration is requested while no archive is in use.
	NotAttempted Result = iota
	// Restored means every archived static of the class was populated.
	Restored
	// Skipped means none were; the ordinary initializer provides them.
	Skipped
)

// String returns the string representation of the result
func (r Result) String() string {
	switch r {
	case NotAttempted:
		return "NotAttempted"
	case Restored:
		return "Restored"
	case Skipped:
		return "Skipped"
	default:
		return "Unknown"
	}
}
