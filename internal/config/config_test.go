// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := write(t, dir, "ripit.yml", "remote: origin\n")

	o, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if o.Repo != "." {
		t.Errorf("expected repo to default to \".\", got %q", o.Repo)
	}
	if len(o.Branches) != 1 || o.Branches[0] != "master" {
		t.Errorf("expected branches to default to [master], got %v", o.Branches)
	}
}

func TestLoadBranchDefaultsBranches(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := write(t, dir, "ripit.yml", "remote: origin\nbranch: release\n")

	o, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(o.Branches) != 1 || o.Branches[0] != "release" {
		t.Errorf("expected branches to default to [release], got %v", o.Branches)
	}
}

func TestLoadExplicitBranchesWins(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := write(t, dir, "ripit.yml", "remote: origin\nbranch: release\nbranches: [a, b]\n")

	o, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(o.Branches) != 2 || o.Branches[0] != "a" || o.Branches[1] != "b" {
		t.Errorf("expected explicit branches to win, got %v", o.Branches)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yml")
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*FailedOpenCfgError); !ok {
		t.Fatalf("expected *FailedOpenCfgError, got %T: %v", err, err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := write(t, dir, "ripit.yml", "remote: [this is not\n  a valid mapping\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*FailedParseCfgError); !ok {
		t.Fatalf("expected *FailedParseCfgError, got %T: %v", err, err)
	}
}

func TestLoadMissingRemote(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := write(t, dir, "ripit.yml", "repo: /tmp/whatever\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error")
	}
	invalid, ok := err.(*InvalidConfigError)
	if !ok {
		t.Fatalf("expected *InvalidConfigError, got %T: %v", err, err)
	}
	if invalid.Field != "remote" {
		t.Errorf("expected the remote field to be flagged, got %q", invalid.Field)
	}
}
