// Public domain.

// Package fitstab reads and writes FITS files.
//
// Files are decoded whole with github.com/siravan/fits.  Values come back
// typed as the file stores them; the functions here convert numeric columns
// and keywords to float64 or int, whatever the stored width.  Files are
// written with github.com/astrogo/fitsio.
//
// String keywords should be written with a comment.  The reader drops a
// string value that ends its card without one.
package fitstab

import (
	"errors"
	"fmt"
	"os"

	"github.com/astrogo/fitsio"
	"github.com/siravan/fits"
)

// Create creates the FITS file fn and calls write to add HDUs to it.
func Create(fn string, write func(f *fitsio.File) error) (err error) {
	w, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil && !errors.Is(cerr, os.ErrClosed) {
			err = cerr
		}
	}()
	f, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	if err = write(f); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", fn, err)
	}
	return f.Close()
}

// WriteEmptyPrimary writes a primary HDU with no data, for files holding
// only tables.
func WriteEmptyPrimary(f *fitsio.File, cards ...fitsio.Card) error {
	phdu := fitsio.NewImage(8, nil)
	defer phdu.Close()
	if err := phdu.Header().Append(cards...); err != nil {
		return err
	}
	return f.Write(phdu)
}

// Open decodes every HDU of the FITS file fn.  An absent file gives an
// error matching fs.ErrNotExist.
func Open(fn string) ([]*fits.Unit, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	u, err := fits.Open(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return u, nil
}

// Table returns HDU ext, which must be a binary table.
func Table(units []*fits.Unit, ext int) (*fits.Unit, error) {
	if ext >= len(units) {
		return nil, fmt.Errorf("no extension %d (%d HDUs)", ext, len(units))
	}
	u := units[ext]
	if !u.HasTable() {
		return nil, fmt.Errorf("extension %d is not a binary table", ext)
	}
	return u, nil
}

// Image returns HDU ext, which must hold image data.
func Image(units []*fits.Unit, ext int) (*fits.Unit, error) {
	if ext >= len(units) {
		return nil, fmt.Errorf("no extension %d (%d HDUs)", ext, len(units))
	}
	u := units[ext]
	if !u.HasImage() || len(u.Naxis) == 0 {
		return nil, fmt.Errorf("extension %d is not an image", ext)
	}
	return u, nil
}

// Rows is the number of rows of table u.
func Rows(u *fits.Unit) int {
	if len(u.Naxis) < 2 {
		return 0
	}
	return u.Naxis[1]
}

// HasColumn reports whether table u has a column named col.
func HasColumn(u *fits.Unit, col string) bool {
	_, ok := u.Keys["#"+col]
	return ok
}

var errType = errors.New("unsupported column type")

// Floats reads a numeric column.
func Floats(u *fits.Unit, col string) ([]float64, error) {
	if !HasColumn(u, col) {
		return nil, fmt.Errorf("no column %s", col)
	}
	fn := u.Field(col)
	c := make([]float64, Rows(u))
	for i := range c {
		switch v := fn(i).(type) {
		case float64:
			c[i] = v
		case float32:
			c[i] = float64(v)
		case int16:
			c[i] = float64(v)
		case int32:
			c[i] = float64(v)
		case int64:
			c[i] = float64(v)
		case uint8:
			c[i] = float64(v)
		default:
			return nil, fmt.Errorf("column %s row %d: %w %T", col, i, errType, v)
		}
	}
	return c, nil
}

// Ints reads an integer column.
func Ints(u *fits.Unit, col string) ([]int, error) {
	if !HasColumn(u, col) {
		return nil, fmt.Errorf("no column %s", col)
	}
	fn := u.Field(col)
	c := make([]int, Rows(u))
	for i := range c {
		switch v := fn(i).(type) {
		case int16:
			c[i] = int(v)
		case int32:
			c[i] = int(v)
		case int64:
			c[i] = int(v)
		case uint8:
			c[i] = int(v)
		default:
			return nil, fmt.Errorf("column %s row %d: %w %T", col, i, errType, v)
		}
	}
	return c, nil
}

// Int returns an integer keyword.
func Int(u *fits.Unit, key string) (int, error) {
	switch v := u.Keys[key].(type) {
	case int:
		return v, nil
	case nil:
		return 0, fmt.Errorf("no keyword %s", key)
	default:
		return 0, fmt.Errorf("keyword %s: not an integer: %v", key, v)
	}
}

// Float returns a numeric keyword.  Whole numbers may be stored without a
// decimal point and decode as int; they are accepted too.
func Float(u *fits.Unit, key string) (float64, error) {
	switch v := u.Keys[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case nil:
		return 0, fmt.Errorf("no keyword %s", key)
	default:
		return 0, fmt.Errorf("keyword %s: not a number: %v", key, v)
	}
}

// String returns a string keyword.
func String(u *fits.Unit, key string) (string, error) {
	switch v := u.Keys[key].(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("no keyword %s", key)
	default:
		return "", fmt.Errorf("keyword %s: not a string: %v", key, v)
	}
}
