// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ripit

import (
	"github.com/grailbio/base/digest"
	"github.com/grailbio/ripit/internal/vcs"
)

// BootstrapAuthor is the identity attached to synthetic seed commits. It is
// distinct from any real contributor so that a bootstrap commit is always
// recognizable in a log, the way grit's generated merge commits are.
var BootstrapAuthor = vcs.Signature{Name: "ripit", Email: "ripit@localhost"}

// Bootstrap creates the synthetic seed commit that anchors a branch's
// replication history, per spec.md 4.6. The seed commit reuses remoteTip's
// tree verbatim (so the local branch starts out identical to the remote
// one). If branch already has a local ref, the seed commit's single parent
// is that ref's tip, so existing private history is kept beneath it;
// otherwise the seed commit has no parent. Its message is a "Bootstrap
// repository from ..." summary followed by the rip-it marker for remoteTip.
//
// Bootstrap refuses to run if any commit reachable from branch's local tip
// is already known to m, since bootstrapping twice would silently orphan
// whatever commits follow the existing tip.
func Bootstrap(repo *vcs.Repo, branch string, remoteTip digest.Digest, m *CorrespondenceMap, quiet bool) error {
	ref := vcs.BranchRef(branch)
	var parents []digest.Digest
	oldID := vcs.ZeroID
	if tip, ok, err := repo.ResolveRef(ref); err != nil {
		return err
	} else if ok {
		bootstrapped, err := m.BootstrappedFrom(repo, tip)
		if err != nil {
			return err
		}
		if bootstrapped {
			return &BranchExistsError{Branch: branch}
		}
		parents = []digest.Digest{tip}
		oldID = tip
	}
	remote, err := repo.ReadCommit(remoteTip)
	if err != nil {
		return err
	}

	message := appendMarker("Bootstrap repository from "+remoteTip.Hex(), remoteTip)
	localID, err := repo.CommitTree(remote.Tree, parents, BootstrapAuthor, BootstrapAuthor, message)
	if err != nil {
		return err
	}
	if err := repo.UpdateRef(ref, localID, oldID); err != nil {
		return err
	}
	m.Insert(remoteTip, localID)
	progressf(quiet, "bootstrapped %s at %s -> %s", branch, remoteTip.Hex()[:7], localID.Hex()[:7])

	if current, ok, err := repo.CurrentBranch(); err == nil && ok && current == branch {
		if err := repo.Checkout(remote.Tree); err != nil {
			return err
		}
	}
	return nil
}
