package io

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/matzehuels/topofeat/pkg/diagram"
	"github.com/matzehuels/topofeat/pkg/distance"
	"github.com/matzehuels/topofeat/pkg/errors"
)

// SaveFeatures writes the feature matrix of dimension dim to dir and
// returns the path written.
func SaveFeatures(dir string, dim int, features mat.Matrix) (string, error) {
	path := filepath.Join(dir, FeaturesFile(dim))
	return path, writeAtomic(path, func(w io.Writer) error {
		return WriteMatrixNPY(w, features)
	})
}

// SaveDistances writes the distance matrix of dimension dim to dir and
// returns the path written.
func SaveDistances(dir string, dim int, m *distance.Matrix) (string, error) {
	path := filepath.Join(dir, DistancesFile(dim))
	return path, writeAtomic(path, func(w io.Writer) error {
		return WriteDistancesCSV(w, m)
	})
}

// SaveDiagrams writes c to dir as JSON and returns the path written.
func SaveDiagrams(dir string, c diagram.Collection) (string, error) {
	path := filepath.Join(dir, DiagramsFile(c.Dimension, FormatJSON))
	return path, writeAtomic(path, func(w io.Writer) error {
		return WriteDiagramsJSON(w, c)
	})
}

// WriteMatrixNPY encodes m as a C-ordered float64 .npy array.
func WriteMatrixNPY(w io.Writer, m mat.Matrix) error {
	if err := npyio.Write(w, m); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "encode npy")
	}
	return nil
}

// ReadMatrixNPY decodes a 2-D float64 .npy array.
func ReadMatrixNPY(r io.Reader) (*mat.Dense, error) {
	var m mat.Dense
	if err := npyio.Read(r, &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode npy")
	}
	return &m, nil
}

// WriteDiagramsJSON encodes c as a diagram document. The output can be
// read back with [ReadDiagramsJSON].
func WriteDiagramsJSON(w io.Writer, c diagram.Collection) error {
	dgms := make([]diagram.Diagram, len(c.Diagrams))
	for i, d := range c.Diagrams {
		if d == nil {
			d = diagram.Diagram{}
		}
		dgms[i] = d
	}
	dim := c.Dimension
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(diagramsDocument{Dimension: &dim, Diagrams: dgms}); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "encode diagrams")
	}
	return nil
}

// WriteDistancesCSV writes m with an index column and a header row.
func WriteDistancesCSV(w io.Writer, m *distance.Matrix) error {
	n := m.Size()
	cw := csv.NewWriter(w)

	record := make([]string, n+1)
	for j := 0; j < n; j++ {
		record[j+1] = strconv.Itoa(j)
	}
	if err := cw.Write(record); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "write csv header")
	}
	for i := 0; i < n; i++ {
		record[0] = strconv.Itoa(i)
		for j := 0; j < n; j++ {
			record[j+1] = formatFloat(m.At(i, j))
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "write csv row %d", i)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "write csv")
	}
	return nil
}

// formatFloat renders v like Python's float repr: integral values keep a
// trailing ".0", very small or large magnitudes use exponent notation and
// NaN is "NaN".
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	if abs := math.Abs(v); v != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
