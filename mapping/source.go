package mapping

// RasterSource is a random-access handle onto a loaded anomaly grid. It
// knows its own header and can materialize an arbitrary sub-rectangle of
// cells on demand — the tile cache is the only thing that decides which
// sub-rectangles get requested and how long they live in memory.
type RasterSource interface {
	// Header returns the grid's affine description.
	Header() MapHeader
	// ReadTile returns nrows*ncols raw cell values, row-major, for the
	// sub-rectangle starting at (row0, col0). The caller guarantees the
	// rectangle lies within [0, NRows) x [0, NCols).
	ReadTile(row0, col0, nrows, ncols int) ([]float32, error)
	// Close releases any resources (open file handles) held by the
	// source. Sources with nothing to release may no-op.
	Close() error
}
