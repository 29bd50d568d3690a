// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ripit

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/ripit/internal/vcs"
)

// newLinkedRepos sets up a bare remote, a "source" checkout that pushes to
// it, and a "local" checkout (ripit's working copy) with a remote named
// origin pointing at the same bare repo. Tests drive source to create
// remote history, then fetch it into local via repo.Fetch.
func newLinkedRepos(t *testing.T, dir string) (source, local *vcs.Repo) {
	t.Helper()
	shell(t, dir, `
		git init -q --bare remote.git
		git clone -q remote.git source
		cd source
		git config user.email you@example.com
		git config user.name "your name"
	`)
	shell(t, dir, `git clone -q remote.git local`)
	shell(t, filepath.Join(dir, "local"), `
		git config user.email you@example.com
		git config user.name "your name"
	`)
	var err error
	source, err = vcs.Open(filepath.Join(dir, "source"))
	if err != nil {
		t.Fatal(err)
	}
	local, err = vcs.Open(filepath.Join(dir, "local"))
	if err != nil {
		t.Fatal(err)
	}
	return source, local
}

func TestBootstrap(t *testing.T) {
	dir, cleanup := temp(t)
	defer cleanup()
	source, local := newLinkedRepos(t, dir)

	shell(t, filepath.Join(dir, "source"), `
		git commit -q --allow-empty -m'remote c1'
		git push -q
	`)
	if err := local.Fetch("origin"); err != nil {
		t.Fatal(err)
	}
	remoteTip, ok, err := local.ResolveRef(vcs.RemoteRef("origin", "master"))
	if err != nil || !ok {
		t.Fatal(err)
	}

	m := NewCorrespondenceMap()
	if err := Bootstrap(local, "master", remoteTip, m, true); err != nil {
		t.Fatal(err)
	}

	localTip, ok, err := local.ResolveRef(vcs.BranchRef("master"))
	if err != nil || !ok {
		t.Fatal("expected master to be bootstrapped")
	}
	localCommit, err := local.ReadCommit(localTip)
	if err != nil {
		t.Fatal(err)
	}
	if len(localCommit.Parents) != 0 {
		t.Errorf("expected the bootstrap commit to be parentless, got %v", localCommit.Parents)
	}
	if got, ok := Marker(localCommit.Message); !ok || got != remoteTip {
		t.Errorf("expected marker pointing at %v, got %v, %v", remoteTip, got, ok)
	}
	if !strings.Contains(localCommit.Message, "Bootstrap repository") {
		t.Errorf("expected the bootstrap commit's summary to mention \"Bootstrap repository\", got %q", localCommit.Message)
	}
	if got, ok := m.LocalOf(remoteTip); !ok || got != localTip {
		t.Errorf("expected map to record (%v, %v)", remoteTip, localTip)
	}

	remoteCommit, err := local.ReadCommit(remoteTip)
	if err != nil {
		t.Fatal(err)
	}
	if localCommit.Tree != remoteCommit.Tree {
		t.Errorf("expected bootstrap commit to reuse the remote tree")
	}

	if err := Bootstrap(local, "master", remoteTip, m, true); err == nil {
		t.Fatal("expected re-bootstrapping an existing branch to fail")
	} else if _, ok := err.(*BranchExistsError); !ok {
		t.Errorf("expected *BranchExistsError, got %T: %v", err, err)
	}

	_ = source
}
