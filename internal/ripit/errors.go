// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ripit

import (
	"fmt"

	"github.com/grailbio/base/digest"
)

// LocalChangesError reports that the working tree was not clean when a
// replication or bootstrap was attempted.
type LocalChangesError struct {
	Paths []string
}

func (e *LocalChangesError) Error() string {
	return fmt.Sprintf("Aborted: local changes present: %v", e.Paths)
}

// MissingBootstrapError reports that no commit reachable from the local
// branch carries a rip-it marker, so normal replay has nothing to anchor
// on.
type MissingBootstrapError struct {
	Branch string
}

func (e *MissingBootstrapError) Error() string {
	return fmt.Sprintf("branch %s has no bootstrapped commit; run with --bootstrap first", e.Branch)
}

// BranchExistsError reports that Bootstrap was asked to seed a branch whose
// local history already contains a commit known to the correspondence map.
type BranchExistsError struct {
	Branch string
}

func (e *BranchExistsError) Error() string {
	return fmt.Sprintf("branch %s is already bootstrapped", e.Branch)
}

// UnknownParentError reports that a commit could not be replayed because
// one of its parents is not yet known and --uproot was not given.
type UnknownParentError struct {
	Commit, Parent digest.Digest
}

func (e *UnknownParentError) Error() string {
	return fmt.Sprintf("commit %s: parent %s cannot be found in the local repository",
		e.Commit.Hex()[:7], e.Parent.Hex()[:7])
}

// ConflictsError reports that one or more commits could not be applied
// cleanly. The engine leaves the working tree in the conflicted state; the
// caller must resolve it and commit with a rip-it marker before retrying.
type ConflictsError struct {
	Commits []digest.Digest
}

func (e *ConflictsError) Error() string {
	return fmt.Sprintf("due to conflicts, could not apply commits: %v", hexAll(e.Commits))
}

func hexAll(ids []digest.Digest) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()[:7]
	}
	return out
}

// CacheCorruptError reports that the cache file names a local commit that
// either doesn't exist or carries no rip-it marker.
type CacheCorruptError struct {
	Path    string
	LocalID string
	Err     error
}

func (e *CacheCorruptError) Error() string {
	return fmt.Sprintf("cache file %s: entry %s: %v", e.Path, e.LocalID, e.Err)
}

func (e *CacheCorruptError) Unwrap() error { return e.Err }

// RemoteMissingError reports that the configured remote-tracking ref does
// not exist.
type RemoteMissingError struct {
	Remote, Branch string
}

func (e *RemoteMissingError) Error() string {
	return fmt.Sprintf("remote ref refs/remotes/%s/%s does not exist", e.Remote, e.Branch)
}
