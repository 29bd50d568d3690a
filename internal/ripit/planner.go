// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ripit

import (
	"github.com/grailbio/base/digest"
	"github.com/grailbio/ripit/internal/vcs"
)

// PlanKind tags the replay decision the Planner makes for a single remote
// commit. spec.md 9 is explicit that this is a three-way tag the Engine
// dispatches on with a switch, not a type hierarchy.
type PlanKind int

const (
	// Skip means the commit is already represented locally; nothing to do.
	Skip PlanKind = iota
	// Copy means every parent of the commit is known; replay preserves
	// the commit's parents 1:1.
	Copy
	// Uproot means at least one parent is unknown; replay must cherry-pick
	// that parent's unknown ancestors before replaying the commit itself.
	Uproot
)

// A Plan is the Planner's decision for one remote commit.
type Plan struct {
	Kind PlanKind
	// MissingParents holds the parents of the classified commit not present in the
	// correspondence map, populated only when Kind == Uproot.
	MissingParents []digest.Digest
}

// Classify decides how to replay c given the current correspondence map.
// It returns UnknownParentError when c has a missing parent and uproot is
// not allowed, per spec.md 4.4.
func Classify(c *vcs.Commit, m *CorrespondenceMap, uproot bool) (Plan, error) {
	if m.ContainsRemote(c.ID) {
		return Plan{Kind: Skip}, nil
	}
	var missing []digest.Digest
	for _, p := range c.Parents {
		if !m.ContainsRemote(p) {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return Plan{Kind: Copy}, nil
	}
	if !uproot {
		return Plan{}, &UnknownParentError{Commit: c.ID, Parent: missing[0]}
	}
	return Plan{Kind: Uproot, MissingParents: missing}, nil
}

// UprootChain enumerates, in replay order, the ancestors of parent that are
// not yet known to m -- the commits that must be cherry-picked onto the
// current local tip before the commit that referenced parent can itself be
// replayed (spec.md 4.4). It reuses the Walker's traversal and tie-break
// order, scoped to parent instead of a branch tip.
func UprootChain(repo *vcs.Repo, parent digest.Digest, m *CorrespondenceMap) ([]*vcs.Commit, error) {
	return Walk(repo, parent, m)
}
