package model

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// FieldReader is a simple reader for whitespace-delimited file formats.
type FieldReader struct {
	Pos    int
	Fields []string
}

// NewFieldReader constructs a new field reader around the given data
func NewFieldReader(data string) *FieldReader {
	return &FieldReader{0, strings.Fields(data)}
}

// Read returns the next space-delimited field/token
func (fr *FieldReader) Read() (string, error) {
	if fr.Pos >= len(fr.Fields) {
		return "", io.EOF
	}
	p := fr.Pos
	fr.Pos++
	return fr.Fields[p], nil
}

// ReadInt reads the next token as an int
func (fr *FieldReader) ReadInt() (int, error) {
	s, err := fr.Read()
	if err != nil {
		return 0, err
	}

	i, err := strconv.ParseInt(s, 10, 0)
	return int(i), err
}

// ReadFloat reads the next token as a float
func (fr *FieldReader) ReadFloat() (float64, error) {
	s, err := fr.Read()
	if err != nil {
		return 0, err
	}

	return strconv.ParseFloat(s, 64)
}

// ReadSites parses the whitespace-delimited site format. A three-integer
// header gives the site count, the spatial dimension, and the covariate
// count; every site then lists its coordinates, the response, and the
// covariates:
//
//	N dim p
//	x y [z] response cov1 ... covp
//
// Line breaks are just whitespace, so wrapped rows parse fine.
func ReadSites(data string) (*SpatialData, error) {
	fr := NewFieldReader(data)

	n, err := fr.ReadInt()
	if err != nil {
		return nil, errors.Wrapf(err, "Could not read the site count")
	}
	dim, err := fr.ReadInt()
	if err != nil {
		return nil, errors.Wrapf(err, "Could not read the spatial dimension")
	}
	p, err := fr.ReadInt()
	if err != nil {
		return nil, errors.Wrapf(err, "Could not read the covariate count")
	}

	if n < 1 {
		return nil, errors.Errorf("Site count %d must be at least 1", n)
	}
	if dim != 2 && dim != 3 {
		return nil, errors.Errorf("Spatial dimension %d must be 2 or 3", dim)
	}
	if p < 1 {
		return nil, errors.Errorf("Covariate count %d must be at least 1", p)
	}

	locs := mat.NewDense(n, dim, nil)
	y := make([]float64, n)
	x := mat.NewDense(n, p, nil)

	for i := 0; i < n; i++ {
		for j := 0; j < dim; j++ {
			v, err := fr.ReadFloat()
			if err != nil {
				return nil, errors.Wrapf(err, "Site %d coordinate %d", i, j)
			}
			locs.Set(i, j, v)
		}

		v, err := fr.ReadFloat()
		if err != nil {
			return nil, errors.Wrapf(err, "Site %d response", i)
		}
		y[i] = v

		for j := 0; j < p; j++ {
			v, err := fr.ReadFloat()
			if err != nil {
				return nil, errors.Wrapf(err, "Site %d covariate %d", i, j)
			}
			x.Set(i, j, v)
		}
	}

	return NewSpatialData(locs, y, x)
}

// ReadSitesFile reads and parses a site file
func ReadSitesFile(filename string) (*SpatialData, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not READ sites from %s", filename)
	}
	return ReadSites(string(data))
}

// WriteSites writes a data set in the format ReadSites parses
func WriteSites(w io.Writer, d *SpatialData) error {
	if err := d.Check(); err != nil {
		return err
	}

	n, dim := d.Locs.Dims()
	_, p := d.X.Dims()

	if _, err := fmt.Fprintf(w, "%d %d %d\n", n, dim, p); err != nil {
		return errors.Wrapf(err, "Could not write the site header")
	}

	for i := 0; i < n; i++ {
		for j := 0; j < dim; j++ {
			if _, err := fmt.Fprintf(w, "%.17g ", d.Locs.At(i, j)); err != nil {
				return errors.Wrapf(err, "Could not write site %d", i)
			}
		}
		if _, err := fmt.Fprintf(w, "%.17g", d.Y[i]); err != nil {
			return errors.Wrapf(err, "Could not write site %d", i)
		}
		for j := 0; j < p; j++ {
			if _, err := fmt.Fprintf(w, " %.17g", d.X.At(i, j)); err != nil {
				return errors.Wrapf(err, "Could not write site %d", i)
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return errors.Wrapf(err, "Could not write site %d", i)
		}
	}

	return nil
}
