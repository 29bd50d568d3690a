// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package cli wires a parsed config.Options to a ripit.Orchestrator behind
// a cobra command tree, and owns everything user-facing: flag parsing,
// logging setup, and the confirmation prompt.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/ripit/internal/config"
	"github.com/grailbio/ripit/internal/ripit"
	"github.com/grailbio/ripit/internal/vcs"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RepoOpenError reports that the repository named by the config file's
// repo field could not be opened.
type RepoOpenError struct {
	Path string
	Err  error
}

func (e *RepoOpenError) Error() string {
	return fmt.Sprintf("opening repository %s: %v", e.Path, e.Err)
}

func (e *RepoOpenError) Unwrap() error { return e.Err }

// BranchMissingError reports that --branch named a branch not present in
// the configuration file's branch list.
type BranchMissingError struct {
	Branch string
}

func (e *BranchMissingError) Error() string {
	return fmt.Sprintf("branch %q is not among the configured branches", e.Branch)
}

var (
	flagBootstrap bool
	flagUproot    bool
	flagNoFetch   bool
	flagQuiet     bool
	flagYes       bool
	flagBranch    string
)

// NewCommand builds the root ripit command: "ripit <config-file>".
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ripit <config-file>",
		Short: "Copy commits between git repositories",
		Long: "ripit replicates a sequence of commits from a remote-tracking\n" +
			"branch onto a local branch, preserving topology and rewriting\n" +
			"commit messages with a marker that records provenance.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), cmd.InOrStdin(), args[0])
		},
	}
	addFlags(cmd.PersistentFlags())
	return cmd
}

// addFlags registers ripit's flags on fs. It takes the concrete *pflag.
// FlagSet (rather than relying on cobra's wrapper methods alone) so that
// flag registration can be unit tested independently of a *cobra.Command.
func addFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&flagBootstrap, "bootstrap", false,
		"create the initial synthetic commit on each configured branch")
	fs.BoolVarP(&flagUproot, "uproot", "u", false,
		"allow replaying commits whose parents are not yet locally known")
	fs.BoolVarP(&flagNoFetch, "no-fetch", "F", false,
		"skip fetching the remote before computing differences")
	fs.BoolVarP(&flagQuiet, "quiet", "q", false,
		"suppress progress output")
	fs.BoolVarP(&flagYes, "yes", "y", false,
		"automatic yes to prompts")
	fs.StringVar(&flagBranch, "branch", "",
		"sync only this configured branch, instead of all of them")
}

func run(stdout io.Writer, stdin io.Reader, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	branches := cfg.Branches
	if flagBranch != "" {
		if !contains(branches, flagBranch) {
			return &BranchMissingError{Branch: flagBranch}
		}
		branches = []string{flagBranch}
	}

	filter, err := ripit.NewMessageFilter(cfg.Filters)
	if err != nil {
		return err
	}

	repo, err := vcs.Open(cfg.Repo)
	if err != nil {
		return &RepoOpenError{Path: cfg.Repo, Err: err}
	}

	opts := ripit.Options{
		Remote:    cfg.Remote,
		Branches:  branches,
		Filter:    filter,
		Bootstrap: flagBootstrap,
		Uproot:    flagUproot,
		Fetch:     !flagNoFetch,
		Quiet:     flagQuiet,
	}
	if !flagYes {
		opts.Confirm = func(branch string, n int) bool {
			fmt.Fprintf(stdout, "%s: about to replay %d commit(s). Proceed? [y/N] ", branch, n)
			return confirmAction(stdin)
		}
	}

	orch := &ripit.Orchestrator{Repo: repo, Opts: opts}
	return orch.Run()
}

func contains(xs []string, x string) bool {
	for _, s := range xs {
		if s == x {
			return true
		}
	}
	return false
}

// confirmAction reads lines from in until one is "y"/"Y" (reported as true)
// or "n"/"N" (false), asking again after any other answer; EOF is treated
// as "no". Ported from the original tool's util::confirm_action.
func confirmAction(in io.Reader) bool {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "y", "Y":
			return true
		case "n", "N":
			return false
		default:
			fmt.Print("Please answer y or n: ")
			continue
		}
	}
	return false
}

// Main is the entrypoint internal/cli exposes to main.go.
func Main() int {
	if err := NewCommand().Execute(); err != nil {
		log.Error.Printf("%v", err)
		return 1
	}
	return 0
}
