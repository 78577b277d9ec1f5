// Evicache can serve pages of a read-only CSV dataset next to its caches. The dataset is loaded lazily on first use
// and kept in memory for the lifetime of its owner; there's no package-level state, consumers share a *Dataset.

package paging

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

var (
	ErrInvalidPage = errors.New("page and page size must be positive integers")
	ErrOutOfRange  = errors.New("index is out of the dataset range")
)

// Dataset owns the rows of one CSV file, header excluded.
type Dataset struct {
	path string
	mux  sync.Mutex
	rows [][]string // Nil until the first successful load.
	// indexed is the deletion-resilient view of `rows`; deleted rows leave a hole instead of shifting indices.
	indexed map[int][]string
}

// NewDataset returns a Dataset reading `path` on first use.
func NewDataset(path string) *Dataset {
	return &Dataset{path: path}
}

// load reads the CSV file if it hasn't been read yet. A failed load isn't cached, so the next call retries.
// Must be called with the lock held.
func (d *Dataset) load() error {
	if d.rows != nil {
		return nil
	}
	file, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("failed to open dataset %s: %w", d.path, err)
	}
	defer func() { _ = file.Close() }()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse dataset %s: %w", d.path, err)
	}
	rows := make([][]string, 0, max(len(records)-1, 0))
	if len(records) > 1 {
		rows = append(rows, records[1:]...) // Skip header row.
	}
	d.rows = rows
	d.indexed = make(map[int][]string, len(rows))
	for index, row := range rows {
		d.indexed[index] = row
	}
	slog.Info("Loaded dataset.", "path", d.path, "rows", len(rows))
	return nil
}

// Rows returns every row of the dataset.
func (d *Dataset) Rows() ([][]string, error) {
	d.mux.Lock()
	defer d.mux.Unlock()
	if err := d.load(); err != nil {
		return nil, err
	}
	return d.rows, nil
}

// DeleteIndex removes the row at `index` from the indexed view used by GetHyperIndex. The plain row slice used by
// GetPage and GetHyper isn't affected.
func (d *Dataset) DeleteIndex(index int) error {
	d.mux.Lock()
	defer d.mux.Unlock()
	if err := d.load(); err != nil {
		return err
	}
	if _, exists := d.indexed[index]; !exists {
		return fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}
	delete(d.indexed, index)
	return nil
}
