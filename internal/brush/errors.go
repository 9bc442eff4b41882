package brush

import "errors"

var (
	// ErrCorruptContainer indicates the source archive is unreadable or misses required entries.
	ErrCorruptContainer = errors.New("corrupt container")
	// ErrUnsupportedAssetFormat indicates a tip raster could not be decoded.
	ErrUnsupportedAssetFormat = errors.New("unsupported asset format")
	// ErrWrite indicates the destination could not be written.
	ErrWrite = errors.New("write error")
)

// ErrorKind names the taxonomy entry of err, or "" when err is not a conversion error.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCorruptContainer):
		return "CorruptContainer"
	case errors.Is(err, ErrUnsupportedAssetFormat):
		return "UnsupportedAssetFormat"
	case errors.Is(err, ErrWrite):
		return "WriteError"
	default:
		return ""
	}
}
