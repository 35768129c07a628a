// Package mapping loads gridded magnetic-anomaly rasters and answers
// geodetic interpolation queries against them through a bounded,
// single-flight tile cache.
package mapping

import "math"

// MagneticMap owns a raster source and the tile cache built on top of
// it. It is read-only after construction and safe for concurrent use:
// all internal mutation is confined to the tile cache's mutex.
type MagneticMap struct {
	header   MapHeader
	source   RasterSource
	tileSize int
	cache    *tileCache
}

// NewMagneticMap constructs a map façade over source. tileSize and
// cacheSize fall back to DefaultTileSize/DefaultCacheSize when <= 0.
func NewMagneticMap(source RasterSource, tileSize, cacheSize int) *MagneticMap {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	m := &MagneticMap{
		header:   source.Header(),
		source:   source,
		tileSize: tileSize,
	}
	m.cache = newTileCache(cacheSize, m.loadTile)
	return m
}

// Header returns the map's affine grid description.
func (m *MagneticMap) Header() MapHeader { return m.header }

// Close releases the underlying raster source.
func (m *MagneticMap) Close() error { return m.source.Close() }

// CacheLen reports the number of tiles currently resident, for tests and
// diagnostics.
func (m *MagneticMap) CacheLen() int { return m.cache.len() }

func (m *MagneticMap) loadTile(key tileKey) (*Tile, error) {
	h := m.header
	row0 := key.row * m.tileSize
	col0 := key.col * m.tileSize
	nrows := m.tileSize
	if row0+nrows > h.NRows {
		nrows = h.NRows - row0
	}
	ncols := m.tileSize
	if col0+ncols > h.NCols {
		ncols = h.NCols - col0
	}
	if nrows <= 0 || ncols <= 0 {
		return nil, newMapIOError("loadTile", "tile (%d,%d) lies outside the grid", key.row, key.col)
	}

	data, err := m.source.ReadTile(row0, col0, nrows, ncols)
	if err != nil {
		return nil, err
	}
	for i, v := range data {
		if v == h.NodataSentinel {
			data[i] = float32(math.NaN())
		}
	}
	return &Tile{
		Meta: TileMetadata{Row0: row0, Col0: col0, NRows: nrows, NCols: ncols},
		Data: data,
	}, nil
}

func (m *MagneticMap) cellAt(row, col int) (float64, error) {
	tileRow := row / m.tileSize
	tileCol := col / m.tileSize
	tile, err := m.cache.getOrLoad(tileKey{row: tileRow, col: tileCol})
	if err != nil {
		return 0, err
	}
	return tile.at(row, col), nil
}

// Interpolate resolves the anomaly value at (lat, lon) using method. A
// query whose bilinear stencil does not fit strictly inside the grid
// fails with *OutOfMapError carrying the offending coordinate. A
// bicubic request whose 4x4 stencil does not fit falls back to
// bilinear rather than erroring.
func (m *MagneticMap) Interpolate(lat, lon float64, method Method) (float64, error) {
	rf, cf := m.header.fractionalIndex(lat, lon)
	r0 := floorIndex(rf)
	c0 := floorIndex(cf)

	if !inBoundsBilinear(r0, c0, m.header.NRows, m.header.NCols) {
		return 0, &OutOfMapError{Lat: lat, Lon: lon}
	}
	fr := rf - float64(r0)
	fc := cf - float64(c0)

	if method == Bicubic && stencilFits(r0, c0, m.header.NRows, m.header.NCols) {
		return m.bicubic(r0, c0, fr, fc)
	}
	return m.bilinear(r0, c0, fr, fc)
}

func (m *MagneticMap) bilinear(r0, c0 int, fr, fc float64) (float64, error) {
	v00, err := m.cellAt(r0, c0)
	if err != nil {
		return 0, err
	}
	v01, err := m.cellAt(r0, c0+1)
	if err != nil {
		return 0, err
	}
	v10, err := m.cellAt(r0+1, c0)
	if err != nil {
		return 0, err
	}
	v11, err := m.cellAt(r0+1, c0+1)
	if err != nil {
		return 0, err
	}
	return bilinearAt(v00, v01, v10, v11, fr, fc), nil
}

func (m *MagneticMap) bicubic(r0, c0 int, fr, fc float64) (float64, error) {
	var rows [4]float64
	for i := -1; i <= 2; i++ {
		var p [4]float64
		for j := -1; j <= 2; j++ {
			v, err := m.cellAt(r0+i, c0+j)
			if err != nil {
				return 0, err
			}
			p[j+1] = v
		}
		rows[i+1] = catmullRom1D(p[0], p[1], p[2], p[3], fc)
	}
	return catmullRom1D(rows[0], rows[1], rows[2], rows[3], fr), nil
}
