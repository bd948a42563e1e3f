package errors

// ERR is a stable error code, the same role ubsverrors.ErrorConstants plays
// in the teacher repo, minus the protobuf generation: we have no RPC wire
// format to keep in sync in this scope, so these are a plain enum.
type ERR int32

const (
	ERR_UNKNOWN ERR = iota
	ERR_UNKNOWN_PARENT
	ERR_ANCIENT_FORK
	ERR_CANNOT_CANONIZE
	ERR_CANNOT_DECANONIZE
	ERR_INCONSISTENT_DATA
	ERR_DATABASE_ERROR
	ERR_VALUE_TOO_LONG
	ERR_KEY_TOO_LONG
	ERR_CORRUPTED
	ERR_NOT_FOUND
	ERR_INVALID_ARGUMENT
)

var errName = map[ERR]string{
	ERR_UNKNOWN:           "UNKNOWN",
	ERR_UNKNOWN_PARENT:    "UNKNOWN_PARENT",
	ERR_ANCIENT_FORK:      "ANCIENT_FORK",
	ERR_CANNOT_CANONIZE:   "CANNOT_CANONIZE",
	ERR_CANNOT_DECANONIZE: "CANNOT_DECANONIZE",
	ERR_INCONSISTENT_DATA: "INCONSISTENT_DATA",
	ERR_DATABASE_ERROR:    "DATABASE_ERROR",
	ERR_VALUE_TOO_LONG:    "VALUE_TOO_LONG",
	ERR_KEY_TOO_LONG:      "KEY_TOO_LONG",
	ERR_CORRUPTED:         "CORRUPTED",
	ERR_NOT_FOUND:         "NOT_FOUND",
	ERR_INVALID_ARGUMENT:  "INVALID_ARGUMENT",
}

func (e ERR) String() string {
	if n, ok := errName[e]; ok {
		return n
	}
	return "UNKNOWN"
}
