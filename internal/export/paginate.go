package export

import "fmt"

// Band is one page's slice of the raster, in source rows.
type Band struct {
	Y      int
	Height int
}

// Paginate slices a raster of height rows into bands of rowsPerPage.
// Bands are contiguous and only the last may be short.
func Paginate(height, rowsPerPage int) ([]Band, error) {
	if rowsPerPage <= 0 {
		return nil, fmt.Errorf("rows per page must be positive, got %d", rowsPerPage)
	}
	if height <= 0 {
		return nil, nil
	}
	bands := make([]Band, 0, (height+rowsPerPage-1)/rowsPerPage)
	for y := 0; y < height; y += rowsPerPage {
		bands = append(bands, Band{Y: y, Height: min(rowsPerPage, height-y)})
	}
	return bands, nil
}
