// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ripit

import (
	"github.com/grailbio/base/digest"
	"github.com/grailbio/base/log"
	"github.com/grailbio/ripit/internal/vcs"
)

// An Engine materializes remote commits as local ones, per spec.md 4.5. It
// is a thin driver over a *vcs.Repo and a *MessageFilter; the replay order
// comes from Walk, and Replay asks Classify how to replay each commit.
type Engine struct {
	Repo   *vcs.Repo
	Filter *MessageFilter
	Uproot bool
	Quiet  bool
}

// Replay advances branch to reflect every commit in commits (the order
// returned by Walk), updating m as it goes. On success, branch's local ref
// points at the local counterpart of the last commit in commits, and the
// working tree is left matching it if branch is currently checked out.
//
// On error, any commits already created remain durable in the object store
// and in m (spec.md 4.5's ordering guarantee); only the caller's decision
// to persist the cache file is left undone.
func (e *Engine) Replay(branch string, commits []*vcs.Commit, m *CorrespondenceMap) error {
	if len(commits) == 0 {
		return nil
	}
	if clean, dirty, err := e.Repo.IsClean(); err != nil {
		return err
	} else if !clean {
		// The cache file lives in the working tree and is rewritten by every
		// successful run, so it alone does not count as a local change.
		var changed []string
		for _, p := range dirty {
			if p != CacheFileName {
				changed = append(changed, p)
			}
		}
		if len(changed) > 0 {
			return &LocalChangesError{Paths: changed}
		}
	}

	ref := vcs.BranchRef(branch)
	tip, tipKnown, err := e.Repo.ResolveRef(ref)
	if err != nil {
		return err
	}

	for _, c := range commits {
		plan, err := Classify(c, m, e.Uproot)
		if err != nil {
			return err
		}
		switch plan.Kind {
		case Skip:
			log.Debug.Printf("skipping already-known commit %s", c.ID.Hex()[:7])
			continue
		case Copy:
			newID, err := e.replayCopy(c, m)
			if err != nil {
				return err
			}
			if err := e.Repo.UpdateRef(ref, newID, zeroIfUnknown(tip, tipKnown)); err != nil {
				return err
			}
			m.Insert(c.ID, newID)
			tip, tipKnown = newID, true
		case Uproot:
			newID, err := e.replayUproot(ref, &tip, &tipKnown, c, m)
			if err != nil {
				return err
			}
			m.Insert(c.ID, newID)
			tip, tipKnown = newID, true
		}
		progressf(e.Quiet, "replayed %s -> %s", c.ID.Hex()[:7], tip.Hex()[:7])
	}

	return e.syncWorkingTree(branch, tip)
}

func zeroIfUnknown(id digest.Digest, known bool) digest.Digest {
	if !known {
		return vcs.ZeroID
	}
	return id
}

// replayCopy implements spec.md 4.5's "Copy" case: every parent of c is
// known, so the local commit reuses c's tree verbatim and its parents are
// simply translated through m.
func (e *Engine) replayCopy(c *vcs.Commit, m *CorrespondenceMap) (digest.Digest, error) {
	parents := make([]digest.Digest, len(c.Parents))
	for i, p := range c.Parents {
		local, ok := m.LocalOf(p)
		if !ok {
			return digest.Digest{}, &UnknownParentError{Commit: c.ID, Parent: p}
		}
		parents[i] = local
	}
	message := e.Filter.Filter(c.Message, c.ID)
	return e.Repo.CommitTree(c.Tree, parents, c.Author, c.Committer, message)
}

// replayUproot implements spec.md 4.4's uproot transformation: every
// missing parent of c is cherry-picked in (via resolveParent, which walks
// and applies that parent's unknown ancestor chain), and c is then replayed
// either as a copy (if it ends up with a single resolved parent) or as a
// merge reproducing its original tree from its now fully-resolved parents.
func (e *Engine) replayUproot(ref string, tip *digest.Digest, tipKnown *bool, c *vcs.Commit, m *CorrespondenceMap) (digest.Digest, error) {
	parents := make([]digest.Digest, len(c.Parents))
	for i, p := range c.Parents {
		if local, ok := m.LocalOf(p); ok {
			parents[i] = local
			continue
		}
		local, err := e.resolveParent(ref, tip, tipKnown, p, m)
		if err != nil {
			return digest.Digest{}, err
		}
		parents[i] = local
	}

	if len(parents) < 2 {
		message := e.Filter.Filter(c.Message, c.ID)
		newID, err := e.Repo.CommitTree(c.Tree, parents, c.Author, c.Committer, message)
		if err != nil {
			return digest.Digest{}, err
		}
		if err := e.Repo.UpdateRef(ref, newID, zeroIfUnknown(*tip, *tipKnown)); err != nil {
			return digest.Digest{}, err
		}
		return newID, nil
	}

	if len(parents) != 2 {
		return digest.Digest{}, &ConflictsError{Commits: []digest.Digest{c.ID}}
	}
	base, err := e.Repo.MergeBase(parents[0], parents[1])
	if err != nil {
		return digest.Digest{}, err
	}
	mergedTree, conflicts, err := e.Repo.MergeTree(base, parents[0], parents[1])
	if err != nil && len(conflicts) == 0 {
		return digest.Digest{}, err
	}
	if len(conflicts) > 0 || mergedTree != c.Tree {
		if err := e.Repo.CheckoutConflicted(mergedTree); err != nil {
			log.Error.Printf("checkout conflicted merge: %v", err)
		}
		return digest.Digest{}, &ConflictsError{Commits: []digest.Digest{c.ID}}
	}
	message := e.Filter.Filter(c.Message, c.ID)
	newID, err := e.Repo.CommitTree(c.Tree, parents, c.Author, c.Committer, message)
	if err != nil {
		return digest.Digest{}, err
	}
	if err := e.Repo.UpdateRef(ref, newID, zeroIfUnknown(*tip, *tipKnown)); err != nil {
		return digest.Digest{}, err
	}
	return newID, nil
}

// resolveParent returns the local commit corresponding to parent, cherry-
// picking parent's unknown ancestor chain onto the current tip if parent
// isn't known yet. Intermediate cherry-picks are inserted into m as they
// are created (not just at the end), so that a later parent chain sharing
// some of the same ancestors -- or a future invocation resyncing past this
// uproot -- sees them as already known (spec.md 4.4, 8 scenario 6).
func (e *Engine) resolveParent(ref string, tip *digest.Digest, tipKnown *bool, parent digest.Digest, m *CorrespondenceMap) (digest.Digest, error) {
	if local, ok := m.LocalOf(parent); ok {
		return local, nil
	}
	chain, err := UprootChain(e.Repo, parent, m)
	if err != nil {
		return digest.Digest{}, err
	}
	for _, a := range chain {
		if local, ok := m.LocalOf(a.ID); ok {
			// Resolved by an earlier sibling chain in this same uproot.
			*tip, *tipKnown = local, true
			continue
		}
		newID, err := e.cherryPick(ref, tip, tipKnown, a)
		if err != nil {
			return digest.Digest{}, err
		}
		m.Insert(a.ID, newID)
		*tip, *tipKnown = newID, true
	}
	local, ok := m.LocalOf(parent)
	if !ok {
		return digest.Digest{}, &UnknownParentError{Parent: parent}
	}
	return local, nil
}

// cherryPick applies a single remote commit onto the current tip by
// three-way merge (base = a's first parent, ours = tip, theirs = a), per
// the Cherry-pick definition in the glossary. The resulting commit is
// single-parented (parent = tip) regardless of how many parents a itself
// has, since uprooted intermediate commits are always linearized.
func (e *Engine) cherryPick(ref string, tip *digest.Digest, tipKnown *bool, a *vcs.Commit) (digest.Digest, error) {
	if !*tipKnown {
		return digest.Digest{}, &MissingBootstrapError{}
	}
	var base digest.Digest
	if len(a.Parents) > 0 {
		base = a.Parents[0]
	} else {
		base = a.ID
	}
	mergedTree, conflicts, err := e.Repo.MergeTree(base, *tip, a.ID)
	if err != nil && len(conflicts) == 0 {
		return digest.Digest{}, err
	}
	if len(conflicts) > 0 {
		if err := e.Repo.CheckoutConflicted(mergedTree); err != nil {
			log.Error.Printf("checkout conflicted cherry-pick: %v", err)
		}
		return digest.Digest{}, &ConflictsError{Commits: []digest.Digest{a.ID}}
	}
	message := e.Filter.FilterUprooted(a.Message, a.ID)
	newID, err := e.Repo.CommitTree(mergedTree, []digest.Digest{*tip}, a.Author, a.Committer, message)
	if err != nil {
		return digest.Digest{}, err
	}
	if err := e.Repo.UpdateRef(ref, newID, *tip); err != nil {
		return digest.Digest{}, err
	}
	return newID, nil
}

// syncWorkingTree checks the working tree out to match tip's tree, but
// only if branch is the one currently checked out -- replaying a branch
// that isn't attached to HEAD (the common case when several branches are
// configured) only needs its ref advanced, like a plain push.
func (e *Engine) syncWorkingTree(branch string, tip digest.Digest) error {
	current, ok, err := e.Repo.CurrentBranch()
	if err != nil {
		return err
	}
	if !ok || current != branch {
		return nil
	}
	commit, err := e.Repo.ReadCommit(tip)
	if err != nil {
		return err
	}
	return e.Repo.Checkout(commit.Tree)
}
