// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ripit

import (
	"github.com/grailbio/ripit/internal/vcs"
)

// Options carries an Orchestrator run's configuration. It mirrors the
// fields of config.Options that the engine actually consumes; internal/cli
// is responsible for translating a parsed config.Options into this type so
// that internal/ripit never needs to import internal/config.
type Options struct {
	Remote    string
	Branches  []string
	Filter    *MessageFilter
	Bootstrap bool
	Uproot    bool
	Fetch     bool
	Quiet     bool
	// Confirm is invoked with the number of commits about to be replayed on
	// a branch; it returns whether to proceed. It is nil-able only for
	// --yes runs, where the Orchestrator skips the prompt entirely.
	Confirm func(branch string, n int) bool
}

// An Orchestrator drives a full ripit invocation across every configured
// branch, per spec.md 4.7.
type Orchestrator struct {
	Repo *vcs.Repo
	Opts Options
}

// Run executes one invocation: optional fetch, map load, then per-branch
// bootstrap-or-replay, persisting the cache after each successful branch.
// It returns the error of the first branch that fails; branches after that
// point are not attempted, matching spec.md 4.7 step 5's "non-zero code on
// the first failure".
func (o *Orchestrator) Run() error {
	if o.Opts.Fetch {
		if err := o.Repo.Fetch(o.Opts.Remote); err != nil {
			return err
		}
	}

	for _, branch := range o.Opts.Branches {
		if err := o.runBranch(branch); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runBranch(branch string) error {
	m, err := Load(o.Repo, branch)
	if err != nil {
		return err
	}

	remoteRef := vcs.RemoteRef(o.Opts.Remote, branch)
	remoteTip, ok, err := o.Repo.ResolveRef(remoteRef)
	if err != nil {
		return err
	}
	if !ok {
		return &RemoteMissingError{Remote: o.Opts.Remote, Branch: branch}
	}

	if o.Opts.Bootstrap {
		if err := Bootstrap(o.Repo, branch, remoteTip, m, o.Opts.Quiet); err != nil {
			return err
		}
		return m.Persist(o.Repo)
	}

	localRef := vcs.BranchRef(branch)
	localTip, ok, err := o.Repo.ResolveRef(localRef)
	if err != nil {
		return err
	} else if !ok {
		return &MissingBootstrapError{Branch: branch}
	}
	if bootstrapped, err := m.BootstrappedFrom(o.Repo, localTip); err != nil {
		return err
	} else if !bootstrapped {
		return &MissingBootstrapError{Branch: branch}
	}

	commits, err := Walk(o.Repo, remoteTip, m)
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		progressf(o.Opts.Quiet, "%s: up to date", branch)
		return nil
	}
	if o.Opts.Confirm != nil && !o.Opts.Confirm(branch, len(commits)) {
		progressf(o.Opts.Quiet, "%s: aborted by user", branch)
		return nil
	}

	engine := &Engine{Repo: o.Repo, Filter: o.Opts.Filter, Uproot: o.Opts.Uproot, Quiet: o.Opts.Quiet}
	if err := engine.Replay(branch, commits, m); err != nil {
		return err
	}
	return m.Persist(o.Repo)
}
