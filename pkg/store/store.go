// Package store resolves a dataset value or a filesystem path to a
// validated in-memory dataset. Two on-disk layouts are understood: a single
// HDF5 file (which includes netCDF4) and a zarr v2 directory store.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"svinterp/internal/models"
)

var (
	// ErrNotFound is returned when a path does not exist or is not a
	// container in either supported format. It matches fs.ErrNotExist.
	ErrNotFound = fmt.Errorf("dataset not found: %w", fs.ErrNotExist)

	// ErrMissingField is returned when a dataset lacks Sv or the channel
	// dimension.
	ErrMissingField = models.ErrMissingField

	// ErrUnsupportedFormat is returned for recognised containers that use
	// features this package cannot decode, such as an unknown codec.
	ErrUnsupportedFormat = errors.New("unsupported container feature")
)

// Source is anything that can produce a dataset: an in-memory
// *models.Dataset or a Path.
type Source interface {
	Open() (*models.Dataset, error)
}

// Path is a filesystem path to an HDF5 file or a zarr directory store.
type Path string

// Open detects the container format and loads the whole dataset.
func (p Path) Open() (*models.Dataset, error) {
	format, err := DetectFormat(string(p))
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatHDF5:
		return LoadHDF5(string(p))
	case FormatZarr:
		return LoadZarr(string(p))
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
}

// Format identifies an on-disk container layout.
type Format int

const (
	FormatUnknown Format = iota
	FormatHDF5
	FormatZarr
)

func (f Format) String() string {
	switch f {
	case FormatHDF5:
		return "hdf5"
	case FormatZarr:
		return "zarr"
	default:
		return "unknown"
	}
}

var hdf5Signature = []byte("\x89HDF\r\n\x1a\n")

// DetectFormat inspects path without loading it. A missing path, or one
// that is neither an HDF5 file nor a zarr group directory, yields
// ErrNotFound.
func DetectFormat(path string) (Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if info.IsDir() {
		for _, marker := range []string{zgroupFile, zmetadataFile} {
			if _, err := os.Stat(filepath.Join(path, marker)); err == nil {
				return FormatZarr, nil
			}
		}
		return FormatUnknown, fmt.Errorf("%w: %s is not a zarr store", ErrNotFound, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	defer f.Close()

	// The superblock may sit at 0 or any power of two from 512 bytes.
	buf := make([]byte, len(hdf5Signature))
	for off := int64(0); off < info.Size(); {
		if _, err := f.ReadAt(buf, off); err != nil && !errors.Is(err, io.EOF) {
			break
		}
		if bytes.Equal(buf, hdf5Signature) {
			return FormatHDF5, nil
		}
		if off == 0 {
			off = 512
		} else {
			off *= 2
		}
	}
	return FormatUnknown, fmt.Errorf("%w: %s is not an HDF5 file", ErrNotFound, path)
}

// Validate checks the structure every processing stage depends on: an Sv
// variable spanning the channel dimension, and consistent dimension lengths.
func Validate(ds *models.Dataset) error {
	if ds == nil {
		return fmt.Errorf("%w: nil dataset", ErrMissingField)
	}
	sv, ok := ds.Var(models.SvVar)
	if !ok {
		return fmt.Errorf("%w: variable %q", ErrMissingField, models.SvVar)
	}
	if !ds.HasDim(models.ChannelDim) || !sv.HasDim(models.ChannelDim) {
		return fmt.Errorf("%w: dimension %q", ErrMissingField, models.ChannelDim)
	}
	if _, ok := sv.AsFloats(); !ok {
		return fmt.Errorf("variable %q must be numeric, got %s", models.SvVar, sv.DType())
	}
	return ds.Validate()
}

// Load opens src and validates the result. No numeric work happens before
// validation succeeds.
func Load(src Source) (*models.Dataset, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrNotFound)
	}
	ds, err := src.Open()
	if err != nil {
		return nil, err
	}
	if err := Validate(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// Save writes ds to path in the given format.
func Save(ds *models.Dataset, path string, format Format) error {
	switch format {
	case FormatHDF5:
		return SaveHDF5(ds, path)
	case FormatZarr:
		return SaveZarr(ds, path)
	default:
		return fmt.Errorf("%w: cannot save as %s", ErrUnsupportedFormat, format)
	}
}

// FormatFromPath guesses the output format from a file name: ".zarr"
// directories are zarr, everything else is HDF5.
func FormatFromPath(path string) Format {
	if filepath.Ext(filepath.Clean(path)) == ".zarr" {
		return FormatZarr
	}
	return FormatHDF5
}
