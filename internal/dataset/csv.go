package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// parseCSV reads a header line followed by rows of features+1 numeric
// columns, the last column being the target. Every value must parse as a
// finite float; strconv accepts "NaN" and "Inf" spellings, so those are
// rejected explicitly.
func parseCSV(r io.Reader, comma rune, features int) (*mat.Dense, []float64, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma

	if _, err := cr.Read(); err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	var xs, ys []float64
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) != features+1 {
			return nil, nil, fmt.Errorf("line %d: got %d columns, want %d", line, len(rec), features+1)
		}
		for j, cell := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d: parse %q: %w", line, cell, err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, fmt.Errorf("line %d column %d: value %q is not finite", line, j+1, cell)
			}
			if j < features {
				xs = append(xs, v)
			} else {
				ys = append(ys, v)
			}
		}
	}
	if len(ys) == 0 {
		return nil, nil, errors.New("no data rows")
	}
	return mat.NewDense(len(ys), features, xs), ys, nil
}
