// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ripit

import (
	"path/filepath"
	"testing"

	"github.com/grailbio/ripit/internal/vcs"
)

// TestWalkLinearHistory exercises the Walker's ordering on a linear history none of
// which is yet known to the correspondence map.
func TestWalkLinearHistory(t *testing.T) {
	dir, cleanup := temp(t)
	defer cleanup()
	shell(t, dir, `
		git init -q repo
		cd repo
		git config user.email you@example.com
		git config user.name "your name"
		echo 1 > file
		git add .
		git commit -q -m'c1'
		echo 2 > file
		git commit -q -a -m'c2'
		echo 3 > file
		git commit -q -a -m'c3'
	`)
	repo, err := vcs.Open(filepath.Join(dir, "repo"))
	if err != nil {
		t.Fatal(err)
	}
	tip, ok, err := repo.ResolveRef(vcs.BranchRef("master"))
	if err != nil || !ok {
		t.Fatal(err)
	}

	commits, err := Walk(repo, tip, NewCorrespondenceMap())
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 3 {
		t.Fatalf("expected 3 commits, got %d", len(commits))
	}
	for i, want := range []string{"c1\n", "c2\n", "c3\n"} {
		if got := commits[i].Message; got != want {
			t.Errorf("commit %d: got message %q, want %q", i, got, want)
		}
	}
}

// TestWalkStopsAtFrontier confirms the walker never descends past a commit
// already present in the correspondence map.
func TestWalkStopsAtFrontier(t *testing.T) {
	dir, cleanup := temp(t)
	defer cleanup()
	shell(t, dir, `
		git init -q repo
		cd repo
		git config user.email you@example.com
		git config user.name "your name"
		git commit -q --allow-empty -m'c1'
		git commit -q --allow-empty -m'c2'
	`)
	repo, err := vcs.Open(filepath.Join(dir, "repo"))
	if err != nil {
		t.Fatal(err)
	}
	tip, ok, err := repo.ResolveRef(vcs.BranchRef("master"))
	if err != nil || !ok {
		t.Fatal(err)
	}
	c2, err := repo.ReadCommit(tip)
	if err != nil {
		t.Fatal(err)
	}

	m := NewCorrespondenceMap()
	m.Insert(c2.Parents[0], c2.Parents[0])

	commits, err := Walk(repo, tip, m)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 1 {
		t.Fatalf("expected 1 commit past the frontier, got %d", len(commits))
	}
	if commits[0].ID != tip {
		t.Errorf("expected the tip commit, got %v", commits[0].ID)
	}
}

// TestWalkMergeTopologicalOrder ensures a merge commit is never ordered
// before either of its parents.
func TestWalkMergeTopologicalOrder(t *testing.T) {
	dir, cleanup := temp(t)
	defer cleanup()
	shell(t, dir, `
		git init -q repo
		cd repo
		git config user.email you@example.com
		git config user.name "your name"
		git commit -q --allow-empty -m'base'
		git checkout -qb feature
		git commit -q --allow-empty -m'feature commit'
		git checkout -q master
		git commit -q --allow-empty -m'master commit'
		git merge -q --no-ff -m'merge commit' feature
	`)
	repo, err := vcs.Open(filepath.Join(dir, "repo"))
	if err != nil {
		t.Fatal(err)
	}
	tip, ok, err := repo.ResolveRef(vcs.BranchRef("master"))
	if err != nil || !ok {
		t.Fatal(err)
	}

	commits, err := Walk(repo, tip, NewCorrespondenceMap())
	if err != nil {
		t.Fatal(err)
	}
	pos := make(map[string]int, len(commits))
	for i, c := range commits {
		pos[c.Message] = i
	}
	if pos["merge commit\n"] <= pos["feature commit\n"] || pos["merge commit\n"] <= pos["master commit\n"] {
		t.Errorf("merge commit ordered before a parent: %v", pos)
	}
	if pos["feature commit\n"] <= pos["base\n"] || pos["master commit\n"] <= pos["base\n"] {
		t.Errorf("a child ordered before base: %v", pos)
	}
}
