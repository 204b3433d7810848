// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package blockstore is the server-side reference-counted, content-addressed
// on-disk block layout: <base>/<bucket>/<unique_id> files with a refcount
// kept in an extended attribute, serialized per-path so concurrent requests
// for the same block never race.
package blockstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pkg/xattr"

	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/pkg/fingerprint"
)

// RefcountAttr is the extended attribute name the refcount is stored
// under. Systems that namespace xattrs expose the same attribute as
// UserRefcountAttr; both are tried at read time.
const (
	RefcountAttr     = "refcount"
	UserRefcountAttr = "user.refcount"
)

// NumBuckets is the fixed number of pre-created buckets, "00".."99".
const NumBuckets = 100

// Store manages one base directory of content-addressed blocks.
type Store struct {
	base  string
	locks sync.Map // path -> *sync.Mutex
}

// Open wraps base, which must already exist or be creatable. It does not
// itself pre-create buckets; call EnsureBuckets for that (done once at
// server startup).
func Open(base string) *Store {
	return &Store{base: base}
}

// EnsureBuckets creates the 00..99 bucket directories with mode 0700 if
// they don't already exist, and verifies the filesystem supports extended
// attributes by probing one of them. Failing the xattr probe is fatal for
// server startup per the spec (XAttrUnsupported).
func (s *Store) EnsureBuckets() error {
	if err := os.MkdirAll(s.base, 0o700); err != nil {
		return errors.NewIOError("Cannot create block store base directory", err.Error(), "Check permissions on "+s.base, err)
	}

	for i := 0; i < NumBuckets; i++ {
		dir := filepath.Join(s.base, fmt.Sprintf("%02d", i))
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.NewIOError("Cannot create bucket directory", err.Error(), "Check permissions on "+dir, err)
		}
	}

	return s.probeXAttrSupport()
}

func (s *Store) probeXAttrSupport() error {
	probe := filepath.Join(s.base, "00", ".xattr_probe")
	if err := os.WriteFile(probe, []byte{}, 0o600); err != nil {
		return errors.NewIOError("Cannot write xattr probe file", err.Error(), "", err)
	}
	defer os.Remove(probe)

	if err := setRefcount(probe, 1); err != nil {
		return errors.NewXAttrUnsupportedError(
			"Extended attributes are not supported",
			"The block store filesystem at "+s.base+" does not support extended attributes",
			"Use a filesystem that supports xattrs (ext4, xfs, apfs, most others)",
			err,
		)
	}
	return nil
}

// Bucket derives the two-character bucket name from a unique_id: the first
// two decimal digit characters found in it, skipping any leading zero
// digits; "00" if fewer than two decimal digits remain.
func Bucket(uniqueID string) string {
	var digits []byte
	for i := 0; i < len(uniqueID); i++ {
		c := uniqueID[i]
		if c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}

	i := 0
	for i < len(digits) && digits[i] == '0' {
		i++
	}
	rest := digits[i:]

	if len(rest) < 2 {
		return "00"
	}
	return string(rest[:2])
}

func (s *Store) pathFor(bucket, name string) string {
	return filepath.Join(s.base, bucket, name)
}

func (s *Store) lockFor(path string) *sync.Mutex {
	m, _ := s.locks.LoadOrStore(path, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Add stores payload under the content-derived name uniqueID. If the block
// already exists, its refcount is bumped and no write happens (dedup).
// Otherwise payload is written, fsynced, and verified against uniqueID
// before the refcount is initialized to 1.
func (s *Store) Add(uniqueID string, payload []byte) (bucket, name string, err error) {
	bucket = Bucket(uniqueID)
	name = uniqueID
	path := s.pathFor(bucket, name)

	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if _, statErr := os.Stat(path); statErr == nil {
		rc, rcErr := getRefcount(path)
		if rcErr != nil {
			return "", "", errors.NewIOError("Cannot read refcount", rcErr.Error(), "", rcErr)
		}
		if err := setRefcount(path, rc+1); err != nil {
			return "", "", errors.NewIOError("Cannot update refcount", err.Error(), "", err)
		}
		return bucket, name, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", "", errors.NewIOError("Cannot create block file", err.Error(), "", err)
	}
	if _, writeErr := f.Write(payload); writeErr != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", "", errors.NewIOError("Cannot write block file", writeErr.Error(), "", writeErr)
	}
	if syncErr := f.Sync(); syncErr != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", "", errors.NewIOError("Cannot fsync block file", syncErr.Error(), "", syncErr)
	}
	if closeErr := f.Close(); closeErr != nil {
		_ = os.Remove(path)
		return "", "", errors.NewIOError("Cannot close block file", closeErr.Error(), "", closeErr)
	}

	onDisk, readErr := os.ReadFile(path)
	if readErr != nil {
		_ = os.Remove(path)
		return "", "", errors.NewIOError("Cannot verify stored block", readErr.Error(), "", readErr)
	}
	got := fingerprint.Bytes(onDisk)
	if got != uniqueID {
		_ = os.Remove(path)
		return "", "", errors.NewIntegrityError(
			"Stored block fingerprint mismatch",
			fmt.Sprintf("Expected %s, computed %s", uniqueID, got),
			"The write may have been corrupted in flight; retry the send",
			nil,
		)
	}

	if err := setRefcount(path, 1); err != nil {
		_ = os.Remove(path)
		return "", "", errors.NewIOError("Cannot set initial refcount", err.Error(), "", err)
	}

	return bucket, name, nil
}

// Delete decrements the refcount for (bucket, name); unlinks the file once
// it reaches zero. Fails NotFound if the block does not exist.
func (s *Store) Delete(bucket, name string) error {
	path := s.pathFor(bucket, name)

	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return errors.NewNotFoundError("Block not found", fmt.Sprintf("No block at %s/%s", bucket, name), "", nil)
	}

	rc, err := getRefcount(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError("Block not found", fmt.Sprintf("No block at %s/%s", bucket, name), "", nil)
		}
		return errors.NewIOError("Cannot read refcount", err.Error(), "", err)
	}

	if rc > 1 {
		return setRefcount(path, rc-1)
	}

	if err := os.Remove(path); err != nil {
		return errors.NewIOError("Cannot remove block file", err.Error(), "", err)
	}
	return nil
}

// Update replaces the content at (bucket, name) when the recomputed
// content id differs: it deletes the old block, then adds the new one.
// If the id is unchanged, Update is a no-op.
func (s *Store) Update(bucket, name string, payload []byte, newUniqueID string) (newBucket, newName string, err error) {
	if newUniqueID == name {
		return bucket, name, nil
	}
	if err := s.Delete(bucket, name); err != nil {
		return "", "", err
	}
	return s.Add(newUniqueID, payload)
}

// Retrieve returns the verbatim stored bytes for (bucket, name). The
// caller (the client, not the server) is responsible for verifying
// integrity against its recorded unique_identifier.
func (s *Store) Retrieve(bucket, name string) ([]byte, error) {
	path := s.pathFor(bucket, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("Block not found", fmt.Sprintf("No block at %s/%s", bucket, name), "", nil)
		}
		return nil, errors.NewIOError("Cannot read block file", err.Error(), "", err)
	}
	return data, nil
}

// FingerprintOf recomputes the fingerprint of the stored bytes at
// (bucket, name), for drift auditing (the fileId command).
func (s *Store) FingerprintOf(bucket, name string) (string, error) {
	data, err := s.Retrieve(bucket, name)
	if err != nil {
		return "", err
	}
	return fingerprint.Bytes(data), nil
}

// ListFiles returns every regular filename directly under bucket.
func (s *Store) ListFiles(bucket string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.base, bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("Bucket not found", "No such bucket: "+bucket, "", nil)
		}
		return nil, errors.NewIOError("Cannot list bucket", err.Error(), "", err)
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// ListBuckets returns every bucket subdirectory name under the base.
func (s *Store) ListBuckets() ([]string, error) {
	entries, err := os.ReadDir(s.base)
	if err != nil {
		return nil, errors.NewIOError("Cannot list block store base", err.Error(), "", err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func getRefcount(path string) (int, error) {
	val, err := xattr.Get(path, RefcountAttr)
	if err != nil {
		val, err = xattr.Get(path, UserRefcountAttr)
	}
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(string(val))
	if convErr != nil {
		return 0, convErr
	}
	return n, nil
}

func setRefcount(path string, n int) error {
	val := []byte(strconv.Itoa(n))
	if err := xattr.Set(path, RefcountAttr, val); err != nil {
		return xattr.Set(path, UserRefcountAttr, val)
	}
	return nil
}
