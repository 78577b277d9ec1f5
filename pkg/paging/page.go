package paging

import "fmt"

// IndexRange returns the half-open range [start, end) of the 1-indexed `page` holding `pageSize` items.
func IndexRange(page, pageSize int) (start, end int) {
	return (page - 1) * pageSize, page * pageSize
}

// GetPage returns the rows of `page`. Pages past the end of the dataset are empty.
func (d *Dataset) GetPage(page, pageSize int) ([][]string, error) {
	if page <= 0 || pageSize <= 0 {
		return nil, fmt.Errorf("%w: page=%d, pageSize=%d", ErrInvalidPage, page, pageSize)
	}
	rows, err := d.Rows()
	if err != nil {
		return nil, err
	}
	start, end := IndexRange(page, pageSize)
	if start >= len(rows) {
		return [][]string{}, nil
	}
	return rows[start:min(end, len(rows))], nil
}

// Hyper is a page with hypermedia metadata; NextPage and PrevPage are nil at the edges.
type Hyper struct {
	PageSize   int // Number of rows in Data.
	Page       int
	Data       [][]string
	NextPage   *int
	PrevPage   *int
	TotalPages int
}

// GetHyper returns `page` along with navigation metadata.
func (d *Dataset) GetHyper(page, pageSize int) (Hyper, error) {
	data, err := d.GetPage(page, pageSize)
	if err != nil {
		return Hyper{}, err
	}
	rows, err := d.Rows()
	if err != nil {
		return Hyper{}, err
	}
	totalPages := (len(rows) + pageSize - 1) / pageSize

	hyper := Hyper{PageSize: len(data), Page: page, Data: data, TotalPages: totalPages}
	if page+1 <= totalPages {
		next := page + 1
		hyper.NextPage = &next
	}
	if page > 1 {
		prev := page - 1
		hyper.PrevPage = &prev
	}
	return hyper, nil
}

// HyperIndex is a deletion-resilient page: it starts at an index rather than a page number, so deleting rows between
// two requests doesn't make the client skip rows.
type HyperIndex struct {
	Index     int
	NextIndex *int // Nil once the end of the dataset is reached.
	PageSize  int  // Number of rows in Data.
	Data      [][]string
}

// GetHyperIndex returns up to `pageSize` rows starting at `startIndex`, skipping deleted rows.
func (d *Dataset) GetHyperIndex(startIndex, pageSize int) (HyperIndex, error) {
	if pageSize <= 0 {
		return HyperIndex{}, fmt.Errorf("%w: pageSize=%d", ErrInvalidPage, pageSize)
	}

	d.mux.Lock()
	defer d.mux.Unlock()
	if err := d.load(); err != nil {
		return HyperIndex{}, err
	}
	// Indices are bounded by the loaded row count; deleted rows leave holes.
	dataLength := len(d.rows)
	if startIndex < 0 || startIndex >= dataLength {
		return HyperIndex{}, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, startIndex, dataLength)
	}

	data := make([][]string, 0, pageSize)
	current := startIndex
	for len(data) < pageSize && current < dataLength {
		if row, exists := d.indexed[current]; exists {
			data = append(data, row)
		}
		current++
	}

	hyperIndex := HyperIndex{Index: startIndex, PageSize: len(data), Data: data}
	if current < dataLength {
		hyperIndex.NextIndex = &current
	}
	return hyperIndex, nil
}
