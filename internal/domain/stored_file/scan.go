package stored_file

type ScanVerdict int

const (
	VerdictClean ScanVerdict = iota
	VerdictInfected
	// VerdictError is a scan failure reported by the daemon itself, e.g. a
	// size limit. It is a content outcome, unlike a dropped connection.
	VerdictError
)

func (v ScanVerdict) String() string {
	switch v {
	case VerdictClean:
		return "clean"
	case VerdictInfected:
		return "infected"
	case VerdictError:
		return "error"
	default:
		return "unknown"
	}
}

type ScanResult struct {
	Verdict ScanVerdict
	// Detail is the signature name for infected content or the daemon's
	// message for VerdictError.
	Detail string
}
