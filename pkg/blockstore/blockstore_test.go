// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package blockstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/pkg/fingerprint"
)

func TestBucketSkipsLeadingZerosAndNonDigits(t *testing.T) {
	assert.Equal(t, "12", Bucket("a1b2c3"))
	assert.Equal(t, "00", Bucket("abcdef"))
	assert.Equal(t, "00", Bucket(""))
	assert.Equal(t, "12", Bucket("001200ff"))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := Open(t.TempDir())
	if err := s.EnsureBuckets(); err != nil {
		ue, ok := errors.As(err)
		if ok && ue.Kind == errors.XAttrUnsupported {
			t.Skip("filesystem does not support extended attributes")
		}
		require.NoError(t, err)
	}
	return s
}

func TestAddNewBlockSetsRefcountOne(t *testing.T) {
	s := newTestStore(t)

	id := fingerprint.String("SGVsbG8=")
	bucket, name, err := s.Add(id, []byte("SGVsbG8="))
	require.NoError(t, err)
	assert.Equal(t, Bucket(id), bucket)
	assert.Equal(t, id, name)

	rc, err := getRefcount(s.pathFor(bucket, name))
	require.NoError(t, err)
	assert.Equal(t, 1, rc)

	data, err := s.Retrieve(bucket, name)
	require.NoError(t, err)
	assert.Equal(t, []byte("SGVsbG8="), data)
}

func TestAddDuplicateBumpsRefcount(t *testing.T) {
	s := newTestStore(t)

	id := fingerprint.String("payload")
	bucket, name, err := s.Add(id, []byte("payload"))
	require.NoError(t, err)

	_, _, err = s.Add(id, []byte("payload"))
	require.NoError(t, err)

	rc, err := getRefcount(s.pathFor(bucket, name))
	require.NoError(t, err)
	assert.Equal(t, 2, rc)
}

func TestDeleteDecrementsThenUnlinks(t *testing.T) {
	s := newTestStore(t)

	id := fingerprint.String("payload")
	bucket, name, err := s.Add(id, []byte("payload"))
	require.NoError(t, err)
	_, _, err = s.Add(id, []byte("payload"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(bucket, name))
	rc, err := getRefcount(s.pathFor(bucket, name))
	require.NoError(t, err)
	assert.Equal(t, 1, rc)

	require.NoError(t, s.Delete(bucket, name))
	_, err = s.Retrieve(bucket, name)
	require.Error(t, err)
	ue, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.NotFound, ue.Kind)
}

func TestDeleteMissingBlockFails(t *testing.T) {
	s := newTestStore(t)
	err := s.Delete("00", "nonexistent")
	require.Error(t, err)
	ue, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.NotFound, ue.Kind)
}

func TestListFilesAndBuckets(t *testing.T) {
	s := newTestStore(t)

	bucket, name, err := s.Add(fingerprint.String("x"), []byte("x"))
	require.NoError(t, err)

	files, err := s.ListFiles(bucket)
	require.NoError(t, err)
	assert.Contains(t, files, name)

	buckets, err := s.ListBuckets()
	require.NoError(t, err)
	assert.Len(t, buckets, NumBuckets)
}

func TestAddRejectsFingerprintMismatch(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Add("wrong-id-not-matching-content", []byte("payload"))
	require.Error(t, err)
	ue, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.IntegrityMismatch, ue.Kind)
}

func TestUpdateDeletesOldBlockBeforeAddingNew(t *testing.T) {
	s := newTestStore(t)

	bucket, name, err := s.Add(fingerprint.String("old payload"), []byte("old payload"))
	require.NoError(t, err)

	newID := fingerprint.String("new payload")
	newBucket, newName, err := s.Update(bucket, name, []byte("new payload"), newID)
	require.NoError(t, err)
	assert.Equal(t, Bucket(newID), newBucket)
	assert.Equal(t, newID, newName)

	// old block is gone, not merely decremented: refcount started at 1.
	_, err = s.Retrieve(bucket, name)
	require.Error(t, err)
	ue, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.NotFound, ue.Kind)

	data, err := s.Retrieve(newBucket, newName)
	require.NoError(t, err)
	assert.Equal(t, []byte("new payload"), data)
}

func TestUpdateSameIDIsNoOp(t *testing.T) {
	s := newTestStore(t)

	id := fingerprint.String("payload")
	bucket, name, err := s.Add(id, []byte("payload"))
	require.NoError(t, err)

	newBucket, newName, err := s.Update(bucket, name, []byte("payload"), id)
	require.NoError(t, err)
	assert.Equal(t, bucket, newBucket)
	assert.Equal(t, name, newName)

	data, err := s.Retrieve(bucket, name)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestUpdatePropagatesDeleteFailureWithoutAdding(t *testing.T) {
	s := newTestStore(t)

	// (bucket, name) does not exist, so the delete half of Update fails;
	// the add half must never run.
	newID := fingerprint.String("new payload")
	_, _, err := s.Update("00", "missing-block", []byte("new payload"), newID)
	require.Error(t, err)
	ue, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.NotFound, ue.Kind)

	_, err = s.Retrieve(Bucket(newID), newID)
	require.Error(t, err)
	ue, ok = errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.NotFound, ue.Kind)
}
