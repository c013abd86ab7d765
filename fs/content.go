// Package fs is the local content store: a content-addressed
// blob directory per account. Uploads land in a temp file tagged with
// cmn.GenTie() -- the same tie-breaker used elsewhere in this codebase to
// keep concurrent writers from colliding on one base name -- fsync,
// then rename into place.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package fs

import (
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/OneOfOne/xxhash"
	"github.com/pkg/errors"

	"github.com/duskline/backend/cmn"
)

// Store is the local filesystem content store rooted at Root. Each account
// gets its own subdirectory named by its public UUID.
type Store struct {
	Root string
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "create content store root")
	}
	return &Store{Root: root}, nil
}

func (s *Store) accountDir(account cmn.AccountId) string {
	return filepath.Join(s.Root, string(account))
}

func (s *Store) finalPath(account cmn.AccountId, content cmn.ContentId) (string, error) {
	dir := s.accountDir(account)
	clean := filepath.Clean(filepath.Join(dir, string(content)+".blob"))
	if !pathWithinDir(clean, dir) {
		return "", cmn.ErrNotAllowed("content path escapes account directory")
	}
	return clean, nil
}

func checksumPath(final string) string { return final + ".xxh" }

func pathWithinDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !(len(rel) >= 2 && rel[0] == '.' && rel[1] == '.')
}

// Put streams r into the account's directory: write to a unique temp file,
// fsync, rename into place. Idempotent: re-uploading the same content id
// overwrites the prior blob atomically. The xxHash64 digest computed while
// streaming is persisted alongside the blob so Verify can later detect silent
// on-disk corruption.
func (s *Store) Put(account cmn.AccountId, content cmn.ContentId, r io.Reader) (int64, error) {
	dir := s.accountDir(account)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrap(err, "create account content dir")
	}
	final, err := s.finalPath(account, content)
	if err != nil {
		return 0, err
	}
	tmp := final + ".tmp." + cmn.GenTie()
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, errors.Wrap(err, "create temp content file")
	}
	h := xxhash.New64()
	n, err := io.Copy(f, io.TeeReader(r, h))
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, errors.Wrap(err, "write content")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, errors.Wrap(err, "fsync content")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, errors.Wrap(err, "close content")
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return 0, errors.Wrap(err, "rename content into place")
	}
	digest := strconv.FormatUint(h.Sum64(), 16)
	if err := os.WriteFile(checksumPath(final), []byte(digest), 0o644); err != nil {
		return 0, errors.Wrap(err, "write content checksum")
	}
	return n, nil
}

// Verify recomputes the blob's xxHash64 digest and compares it against the
// one recorded at Put time. A missing checksum sidecar (content written
// before this field existed) is treated as unverifiable, not corrupt.
func (s *Store) Verify(account cmn.AccountId, content cmn.ContentId) (bool, error) {
	final, err := s.finalPath(account, content)
	if err != nil {
		return false, err
	}
	want, err := os.ReadFile(checksumPath(final))
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, errors.Wrap(err, "read content checksum")
	}
	f, err := os.Open(final)
	if err != nil {
		if os.IsNotExist(err) {
			return false, cmn.ErrNotFound("content blob not found")
		}
		return false, errors.Wrap(err, "open content for verify")
	}
	defer f.Close()
	h := xxhash.New64()
	if _, err := io.Copy(h, f); err != nil {
		return false, errors.Wrap(err, "hash content")
	}
	return strconv.FormatUint(h.Sum64(), 16) == string(want), nil
}

// Get returns the blob's byte length and a streaming reader; caller must
// close the returned ReadCloser.
func (s *Store) Get(account cmn.AccountId, content cmn.ContentId) (int64, io.ReadCloser, error) {
	final, err := s.finalPath(account, content)
	if err != nil {
		return 0, nil, err
	}
	f, err := os.Open(final)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, cmn.ErrNotFound("content blob not found")
		}
		return 0, nil, errors.Wrap(err, "open content")
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, nil, errors.Wrap(err, "stat content")
	}
	return info.Size(), f, nil
}

// Delete is idempotent: deleting a blob that doesn't exist is not an error.
func (s *Store) Delete(account cmn.AccountId, content cmn.ContentId) error {
	final, err := s.finalPath(account, content)
	if err != nil {
		return err
	}
	if err := os.Remove(final); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "delete content")
	}
	if err := os.Remove(checksumPath(final)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "delete content checksum")
	}
	return nil
}

// Exists reports whether content appears in the account's content directory.
// Invariant 5 (current profile content must exist on disk) is checked with
// exactly this call.
func (s *Store) Exists(account cmn.AccountId, content cmn.ContentId) bool {
	final, err := s.finalPath(account, content)
	if err != nil {
		return false
	}
	_, err = os.Stat(final)
	return err == nil
}
