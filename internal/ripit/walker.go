// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ripit

import (
	"sort"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/ripit/internal/vcs"
)

// Walk enumerates the remote commits reachable from tip that are not yet
// represented in m, in a deterministic replay order, per spec.md 4.3.
//
// It performs a depth-first traversal of tip's ancestors, refusing to
// descend past any commit already known to m (the "frontier"), then
// topologically sorts the unknown set with ties broken by committer
// timestamp ascending and then by id, so that a commit never precedes a
// parent that is also being replayed.
func Walk(repo *vcs.Repo, tip digest.Digest, m *CorrespondenceMap) ([]*vcs.Commit, error) {
	unknown := make(map[digest.Digest]*vcs.Commit)
	seen := make(map[digest.Digest]bool)
	var visit func(id digest.Digest) error
	visit = func(id digest.Digest) error {
		if seen[id] || m.ContainsRemote(id) {
			return nil
		}
		seen[id] = true
		commit, err := repo.ReadCommit(id)
		if err != nil {
			return err
		}
		unknown[id] = commit
		for _, p := range commit.Parents {
			if err := visit(p); err != nil {
				return err
			}
		}
		return nil
	}
	if !m.ContainsRemote(tip) {
		if err := visit(tip); err != nil {
			return nil, err
		}
	}
	return topoSort(unknown, m), nil
}

// topoSort orders unknown so that every commit appears after all of its
// parents that are also in unknown; parents already present in m impose no
// ordering constraint. Ties are broken by committer timestamp ascending,
// then by id lexicographically, for a fully deterministic order.
func topoSort(unknown map[digest.Digest]*vcs.Commit, m *CorrespondenceMap) []*vcs.Commit {
	indegree := make(map[digest.Digest]int, len(unknown))
	children := make(map[digest.Digest][]digest.Digest, len(unknown))
	for id, c := range unknown {
		for _, p := range c.Parents {
			if _, ok := unknown[p]; !ok {
				continue
			}
			indegree[id]++
			children[p] = append(children[p], id)
		}
	}

	less := func(a, b digest.Digest) bool {
		ca, cb := unknown[a], unknown[b]
		ta, tb := ca.Committer.When, cb.Committer.When
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
		return a.Hex() < b.Hex()
	}

	var ready []digest.Digest
	for id := range unknown {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })

	var order []*vcs.Commit
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, unknown[id])
		var newlyReady []digest.Digest
		for _, child := range children[id] {
			indegree[child]--
			if indegree[child] == 0 {
				newlyReady = append(newlyReady, child)
			}
		}
		sort.Slice(newlyReady, func(i, j int) bool { return less(newlyReady[i], newlyReady[j]) })
		ready = mergeSorted(ready, newlyReady, less)
	}
	return order
}

// mergeSorted merges two already-sorted slices into one sorted slice.
func mergeSorted(a, b []digest.Digest, less func(a, b digest.Digest) bool) []digest.Digest {
	out := make([]digest.Digest, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if less(a[i], b[j]) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
