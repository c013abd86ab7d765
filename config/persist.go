package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/duskline/backend/cmn"
)

// SideFile persists small pieces of state that must survive a restart but
// don't belong in the relational store -- e.g. per-day email send counters
// (spec §6). Writes go to a temp file in the same directory, are fsynced,
// then renamed over the target, the same write-then-rename shape the
// teacher's jsp package uses for its metadata files and the content store
// uses for uploads.
func SaveSideFile(path string, v interface{}) (err error) {
	tmp := path + ".tmp." + cmn.GenTie()
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.Wrapf(err, "create %s", tmp)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	b, err := toml.Marshal(v)
	if err != nil {
		_ = f.Close()
		return errors.Wrap(err, "encode side-file")
	}
	if _, err = f.Write(b); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "fsync %s", tmp)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp)
	}
	if err = os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "rename %s -> %s", tmp, path)
	}
	return nil
}

// LoadSideFile loads a side-file written by SaveSideFile. A missing file is
// not an error -- callers should treat it as "no persisted state yet".
func LoadSideFile(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "read %s", path)
	}
	if err := toml.Unmarshal(b, v); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	return nil
}

// EnsureDir creates dir (and parents) if it does not already exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(filepath.Clean(dir), 0o755)
}
