package io

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/matzehuels/topofeat/pkg/errors"
)

// writeAtomic writes the output of write to path through a temporary file
// in the same directory. path is replaced only if write succeeds.
func writeAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := errors.ValidateOutputDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		if errors.GetCode(err) != "" {
			return fail(err)
		}
		return fail(errors.Wrap(errors.ErrCodeIO, err, "write %s", filepath.Base(path)))
	}
	if err := bw.Flush(); err != nil {
		return fail(errors.Wrap(errors.ErrCodeIO, err, "write %s", filepath.Base(path)))
	}
	if err := tmp.Sync(); err != nil {
		return fail(errors.Wrap(errors.ErrCodeIO, err, "sync %s", filepath.Base(path)))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(errors.ErrCodeIO, err, "close temp file")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(errors.ErrCodeIO, err, "chmod temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(errors.ErrCodeIO, err, "rename temp file to %s", path)
	}
	return nil
}
