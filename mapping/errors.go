package mapping

import "fmt"

// MapIOError signals an unreadable raster source: missing file, short
// read, or an I/O failure while streaming tile data.
type MapIOError struct {
	Op  string
	Msg string
}

func (e *MapIOError) Error() string { return fmt.Sprintf("mapping: %s: %s", e.Op, e.Msg) }
func (e *MapIOError) Kind() string  { return "MapIOError" }

func newMapIOError(op, format string, args ...interface{}) error {
	return &MapIOError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// MapFormatError signals a structurally invalid raster: bad magic,
// non-monotonic or non-uniform coordinate vectors.
type MapFormatError struct {
	Op  string
	Msg string
}

func (e *MapFormatError) Error() string { return fmt.Sprintf("mapping: %s: %s", e.Op, e.Msg) }
func (e *MapFormatError) Kind() string  { return "MapFormatError" }

func newMapFormatError(op, format string, args ...interface{}) error {
	return &MapFormatError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// OutOfMapError reports a query whose interpolation stencil does not fit
// strictly inside the grid, carrying the offending coordinate.
type OutOfMapError struct {
	Lat, Lon float64
}

func (e *OutOfMapError) Error() string {
	return fmt.Sprintf("mapping: query (%.6f, %.6f) is out of map bounds", e.Lat, e.Lon)
}
func (e *OutOfMapError) Kind() string { return "OutOfMapError" }
