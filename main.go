// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Ripit copies commits from a remote-tracking branch onto a local branch,
// preserving topology, while rewriting commit messages with a marker that
// records the provenance of each replicated commit.
//
// Usage:
//
//	ripit [flags] <config-file>
//
// The configuration file names the remote to synchronize from and the
// branches to synchronize; see config-template.yml.
package main

import (
	"os"

	"github.com/grailbio/ripit/internal/cli"
)

func main() {
	os.Exit(cli.Main())
}
