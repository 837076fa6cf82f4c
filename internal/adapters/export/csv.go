// Package export writes rating snapshots to CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/okian/sandscore/internal/domain/model"
)

// Header is the column layout of a ratings export.
var Header = []string{"username", "player_id", "mens_rating", "mens_rd", "womens_rating", "womens_rd"}

// WriteCSV writes one row per profile in the given order.
func WriteCSV(w io.Writer, profiles []model.Profile) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range profiles {
		row := []string{
			p.Username,
			p.ID,
			strconv.Itoa(p.Mens.Rating),
			strconv.Itoa(p.Mens.Deviation),
			strconv.Itoa(p.Womens.Rating),
			strconv.Itoa(p.Womens.Deviation),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", p.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the export to path through a temporary file in the
// same directory, so readers never see a partial file.
func WriteFile(path string, profiles []model.Profile) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ratings-*.csv")
	if err != nil {
		return fmt.Errorf("create temp export: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = WriteCSV(tmp, profiles); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close export: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish export: %w", err)
	}
	return nil
}
