package io

import (
	"encoding/json"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/sbinet/npyio"

	"github.com/matzehuels/topofeat/pkg/diagram"
	"github.com/matzehuels/topofeat/pkg/engine"
	"github.com/matzehuels/topofeat/pkg/errors"
)

type diagramsDocument struct {
	Dimension *int              `json:"dimension,omitempty"`
	Diagrams  []diagram.Diagram `json:"diagrams"`
}

type cloudsDocument struct {
	Clouds [][][]float64 `json:"clouds"`
}

// LoadDiagrams reads and validates the diagrams of dimension dim stored in
// dir. See [FindDiagrams] for how the file is located.
func LoadDiagrams(dir string, dim int) (diagram.Collection, error) {
	path, _, err := FindDiagrams(dir, dim)
	if err != nil {
		return diagram.Collection{}, err
	}
	return ReadDiagramsFile(path, dim)
}

// ReadDiagramsFile reads the diagram file at path, which must hold diagrams
// of dimension dim, and validates every pair.
func ReadDiagramsFile(path string, dim int) (diagram.Collection, error) {
	if err := errors.ValidateDimension(dim); err != nil {
		return diagram.Collection{}, err
	}
	if err := errors.ValidateInputFile(path); err != nil {
		return diagram.Collection{}, err
	}
	format, err := formatOf(path)
	if err != nil {
		return diagram.Collection{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return diagram.Collection{}, errors.Wrap(errors.ErrCodeIO, err, "open %s", path)
	}
	defer f.Close()

	var c diagram.Collection
	switch format {
	case FormatNPY:
		c, err = ReadDiagramsNPY(f, dim)
	default:
		c, err = ReadDiagramsJSON(f, dim)
	}
	if err != nil {
		return diagram.Collection{}, errors.Wrap(errors.GetCode(err), err, "%s", path)
	}
	if err := diagram.Validate(c); err != nil {
		return diagram.Collection{}, err
	}
	return c, nil
}

// ReadDiagramsJSON decodes a diagram document from r. A document whose
// dimension differs from dim is a DIMENSION_MISMATCH; a document without a
// dimension field is accepted as dimension dim.
func ReadDiagramsJSON(r io.Reader, dim int) (diagram.Collection, error) {
	var doc diagramsDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return diagram.Collection{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode diagrams")
	}
	if doc.Dimension != nil && *doc.Dimension != dim {
		return diagram.Collection{}, errors.New(errors.ErrCodeDimensionMismatch,
			"file holds diagrams of dimension %d, requested %d", *doc.Dimension, dim)
	}
	if doc.Diagrams == nil {
		return diagram.Collection{}, errors.New(errors.ErrCodeInvalidFormat, `missing "diagrams" field`)
	}
	for i, d := range doc.Diagrams {
		if d == nil {
			doc.Diagrams[i] = diagram.Diagram{}
		}
	}
	return diagram.Collection{Dimension: dim, Diagrams: doc.Diagrams}, nil
}

// ReadDiagramsNPY decodes a NaN-padded [n_obs, max_points, 2] float64 array.
func ReadDiagramsNPY(r io.Reader, dim int) (diagram.Collection, error) {
	rows, err := readPadded(r, 2)
	if err != nil {
		return diagram.Collection{}, err
	}
	out := make([]diagram.Diagram, len(rows))
	for i, obs := range rows {
		d := make(diagram.Diagram, 0, len(obs))
		for _, v := range obs {
			if math.IsNaN(v[0]) && math.IsNaN(v[1]) {
				continue
			}
			d = append(d, diagram.Pair{Birth: v[0], Death: v[1]})
		}
		out[i] = d
	}
	return diagram.Collection{Dimension: dim, Diagrams: out}, nil
}

// LoadClouds reads the point clouds stored at path (.npy or .json).
func LoadClouds(path string) ([]engine.PointCloud, error) {
	if err := errors.ValidateInputFile(path); err != nil {
		return nil, err
	}
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "open %s", path)
	}
	defer f.Close()

	var clouds []engine.PointCloud
	if format == FormatNPY {
		clouds, err = ReadCloudsNPY(f)
	} else {
		clouds, err = ReadCloudsJSON(f)
	}
	if err != nil {
		return nil, errors.Wrap(errors.GetCode(err), err, "%s", path)
	}
	return clouds, nil
}

// ReadCloudsNPY decodes a NaN-padded [n_obs, n_points, 3] float64 array.
func ReadCloudsNPY(r io.Reader) ([]engine.PointCloud, error) {
	rows, err := readPadded(r, 3)
	if err != nil {
		return nil, err
	}
	out := make([]engine.PointCloud, len(rows))
	for i, obs := range rows {
		cloud := make(engine.PointCloud, 0, len(obs))
		for j, v := range obs {
			if math.IsNaN(v[0]) && math.IsNaN(v[1]) && math.IsNaN(v[2]) {
				continue
			}
			p, err := toPoint(v)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "cloud %d point %d", i, j)
			}
			cloud = append(cloud, p)
		}
		out[i] = cloud
	}
	return out, nil
}

// ReadCloudsJSON decodes a {"clouds": [...]} document.
func ReadCloudsJSON(r io.Reader) ([]engine.PointCloud, error) {
	var doc cloudsDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode point clouds")
	}
	if doc.Clouds == nil {
		return nil, errors.New(errors.ErrCodeInvalidFormat, `missing "clouds" field`)
	}
	out := make([]engine.PointCloud, len(doc.Clouds))
	for i, obs := range doc.Clouds {
		cloud := make(engine.PointCloud, len(obs))
		for j, v := range obs {
			p, err := toPoint(v)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "cloud %d point %d", i, j)
			}
			cloud[j] = p
		}
		out[i] = cloud
	}
	return out, nil
}

func toPoint(v []float64) (engine.Point, error) {
	if len(v) != 3 {
		return engine.Point{}, errors.New(errors.ErrCodeInvalidFormat, "point must have 3 coordinates, got %d", len(v))
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return engine.Point{}, errors.New(errors.ErrCodeInvalidFormat, "non-finite coordinate %v", v)
		}
	}
	return engine.Point{v[0], v[1], v[2]}, nil
}

// readPadded reads a C-ordered float64 array of shape [n, m, width] and
// returns it as n slices of m rows.
func readPadded(r io.Reader, width int) ([][][]float64, error) {
	size, sized := inputSize(r)
	rd, err := npyio.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "read npy header")
	}
	descr := rd.Header.Descr
	if descr.Fortran {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "fortran-ordered arrays are not supported")
	}
	shape := descr.Shape
	if len(shape) != 3 || shape[2] != width {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "array shape %v, want [n_obs, n_points, %d]", shape, width)
	}

	count, err := checkShape(shape, rd.Header.Descr.Type, size, sized)
	if err != nil {
		return nil, err
	}

	n, m := shape[0], shape[1]
	raw := make([]float64, count)
	if err := rd.Read(&raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "read npy data")
	}

	out := make([][][]float64, n)
	for i := range out {
		out[i] = make([][]float64, m)
		for j := range out[i] {
			off := (i*m + j) * width
			out[i][j] = raw[off : off+width]
		}
	}
	return out, nil
}

// maxUnsizedElements caps arrays read from inputs of unknown length.
const maxUnsizedElements = 1 << 28

// inputSize reports the total byte length of r when it can be known without
// reading it.
func inputSize(r io.Reader) (int64, bool) {
	switch v := r.(type) {
	case interface{ Len() int }:
		return int64(v.Len()), true
	case interface{ Stat() (os.FileInfo, error) }:
		if info, err := v.Stat(); err == nil && info.Mode().IsRegular() {
			return info.Size(), true
		}
	}
	return 0, false
}

// checkShape returns the element count of shape after checking that it is
// non-negative, does not overflow, and fits in size bytes of typ elements
// (or under maxUnsizedElements when size is unknown).
func checkShape(shape []int, typ string, size int64, sized bool) (int, error) {
	count := 1
	for _, d := range shape {
		if d < 0 {
			return 0, errors.New(errors.ErrCodeInvalidFormat, "negative dimension in array shape %v", shape)
		}
		if d > 0 && count > math.MaxInt/d {
			return 0, errors.New(errors.ErrCodeInvalidFormat, "array shape %v overflows", shape)
		}
		count *= d
	}
	if sized {
		if int64(count) > size/int64(itemSize(typ)) {
			return 0, errors.New(errors.ErrCodeInvalidFormat, "array shape %v needs more data than the %d byte input holds", shape, size)
		}
	} else if count > maxUnsizedElements {
		return 0, errors.New(errors.ErrCodeInvalidFormat, "array shape %v exceeds %d elements", shape, maxUnsizedElements)
	}
	return count, nil
}

// itemSize parses the element size from a dtype string such as "<f8",
// defaulting to 1 byte.
func itemSize(typ string) int {
	i := len(typ)
	for i > 0 && typ[i-1] >= '0' && typ[i-1] <= '9' {
		i--
	}
	if n, err := strconv.Atoi(typ[i:]); err == nil && n > 0 {
		return n
	}
	return 1
}
