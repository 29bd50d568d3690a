// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ripit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/base/log"
	"github.com/grailbio/ripit/internal/vcs"
)

// CacheFileName is the name of the cache file maintained in a repository's
// working directory, as specified in spec.md 3 and 6.
const CacheFileName = ".ripit-cache"

// A CorrespondenceMap is the bidirectional mapping between remote and local
// commit ids described in spec.md 4.2. It is owned by the Orchestrator and
// passed by reference to the Walker, Planner, and Engine in turn; there is
// no global state (spec.md 9).
type CorrespondenceMap struct {
	remoteToLocal map[digest.Digest]digest.Digest
	localToRemote map[digest.Digest]digest.Digest
	order         []digest.Digest // local ids, insertion order, for persist
}

// NewCorrespondenceMap returns an empty map.
func NewCorrespondenceMap() *CorrespondenceMap {
	return &CorrespondenceMap{
		remoteToLocal: make(map[digest.Digest]digest.Digest),
		localToRemote: make(map[digest.Digest]digest.Digest),
	}
}

// Load populates m from the repo's cache file, if present, and then from a
// scan of the local branch's history for rip-it markers. Cache-file entries
// take precedence over the marker scan (spec.md 4.2, 9).
func Load(repo *vcs.Repo, branch string) (*CorrespondenceMap, error) {
	m := NewCorrespondenceMap()
	path := cachePath(repo)
	if err := m.loadCache(repo, path); err != nil {
		return nil, err
	}
	if err := m.scanMarkers(repo, branch); err != nil {
		return nil, err
	}
	return m, nil
}

func cachePath(repo *vcs.Repo) string {
	return filepath.Join(repo.String(), CacheFileName)
}

func (m *CorrespondenceMap) loadCache(repo *vcs.Repo, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if line == "" {
			continue
		}
		localID, err := vcs.SHA1.Parse(line)
		if err != nil {
			return &CacheCorruptError{Path: path, LocalID: line, Err: err}
		}
		commit, err := repo.ReadCommit(localID)
		if err != nil {
			return &CacheCorruptError{Path: path, LocalID: line, Err: err}
		}
		remoteID, ok := Marker(commit.Message)
		if !ok {
			return &CacheCorruptError{Path: path, LocalID: line, Err: fmt.Errorf("no rip-it marker")}
		}
		m.insert(remoteID, localID)
	}
	return nil
}

// scanMarkers walks the local branch's ancestry, adding any (remote, local)
// pair found via a rip-it marker that isn't already known. This is the
// fallback of spec.md 4.2, used both at startup and to recover progress
// after a conflict was hand-resolved.
func (m *CorrespondenceMap) scanMarkers(repo *vcs.Repo, branch string) error {
	id, ok, err := repo.ResolveRef(vcs.BranchRef(branch))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	seen := make(map[digest.Digest]bool)
	stack := []digest.Digest{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		commit, err := repo.ReadCommit(cur)
		if err != nil {
			return err
		}
		if remoteID, ok := Marker(commit.Message); ok {
			if _, known := m.localToRemote[cur]; !known {
				m.insert(remoteID, cur)
			}
		}
		stack = append(stack, commit.Parents...)
	}
	return nil
}

func (m *CorrespondenceMap) insert(remote, local digest.Digest) {
	if _, ok := m.remoteToLocal[remote]; ok {
		return
	}
	m.remoteToLocal[remote] = local
	m.localToRemote[local] = remote
	m.order = append(m.order, local)
}

// Insert records that remote corresponds to local. It is a no-op if remote
// is already known.
func (m *CorrespondenceMap) Insert(remote, local digest.Digest) {
	m.insert(remote, local)
}

// ContainsRemote reports whether id is known.
func (m *CorrespondenceMap) ContainsRemote(id digest.Digest) bool {
	_, ok := m.remoteToLocal[id]
	return ok
}

// LocalOf returns the local commit corresponding to a known remote commit.
func (m *CorrespondenceMap) LocalOf(remote digest.Digest) (digest.Digest, bool) {
	id, ok := m.remoteToLocal[remote]
	return id, ok
}

// RemoteOf returns the remote commit corresponding to a known local commit.
func (m *CorrespondenceMap) RemoteOf(local digest.Digest) (digest.Digest, bool) {
	id, ok := m.localToRemote[local]
	return id, ok
}

// BootstrappedFrom reports whether any commit reachable from tip (tip
// itself included) is known to m, i.e. carries a correspondence back to a
// remote commit. runBranch uses this to tell a properly bootstrapped
// branch apart from one whose ref merely exists — spec.md 4.6/7 define
// MissingBootstrap as "the local branch has no commit carrying a rip-it
// marker", not "the local branch has no ref".
func (m *CorrespondenceMap) BootstrappedFrom(repo *vcs.Repo, tip digest.Digest) (bool, error) {
	seen := make(map[digest.Digest]bool)
	stack := []digest.Digest{tip}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if _, ok := m.RemoteOf(cur); ok {
			return true, nil
		}
		commit, err := repo.ReadCommit(cur)
		if err != nil {
			return false, err
		}
		stack = append(stack, commit.Parents...)
	}
	return false, nil
}

// Persist rewrites the cache file as the ordered list of local ids
// inserted into m, newline terminated, replacing the file atomically by
// writing to a temp file and renaming over it (spec.md 4.2).
func (m *CorrespondenceMap) Persist(repo *vcs.Repo) error {
	path := cachePath(repo)
	var b strings.Builder
	for _, id := range m.order {
		b.WriteString(id.Hex())
		b.WriteByte('\n')
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	log.Debug.Printf("%s: wrote %d entries", path, len(m.order))
	return nil
}
