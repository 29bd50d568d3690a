// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ripit

import (
	"testing"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/ripit/internal/vcs"
)

func mustParse(t *testing.T, hex string) digest.Digest {
	t.Helper()
	id, err := vcs.SHA1.Parse(hex)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestClassifySkip(t *testing.T) {
	id := mustParse(t, "1111111111111111111111111111111111111111")
	m := NewCorrespondenceMap()
	m.Insert(id, id)
	plan, err := Classify(&vcs.Commit{ID: id}, m, false)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Kind != Skip {
		t.Errorf("expected Skip, got %v", plan.Kind)
	}
}

func TestClassifyCopy(t *testing.T) {
	parent := mustParse(t, "2222222222222222222222222222222222222222")
	id := mustParse(t, "3333333333333333333333333333333333333333")
	m := NewCorrespondenceMap()
	m.Insert(parent, parent)
	plan, err := Classify(&vcs.Commit{ID: id, Parents: []digest.Digest{parent}}, m, false)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Kind != Copy {
		t.Errorf("expected Copy, got %v", plan.Kind)
	}
}

func TestClassifyUnknownParentWithoutUproot(t *testing.T) {
	parent := mustParse(t, "4444444444444444444444444444444444444444")
	id := mustParse(t, "5555555555555555555555555555555555555555")
	_, err := Classify(&vcs.Commit{ID: id, Parents: []digest.Digest{parent}}, NewCorrespondenceMap(), false)
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*UnknownParentError); !ok {
		t.Fatalf("expected *UnknownParentError, got %T", err)
	}
}

func TestClassifyUprootAllowed(t *testing.T) {
	parent := mustParse(t, "6666666666666666666666666666666666666666")
	id := mustParse(t, "7777777777777777777777777777777777777777")
	plan, err := Classify(&vcs.Commit{ID: id, Parents: []digest.Digest{parent}}, NewCorrespondenceMap(), true)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Kind != Uproot {
		t.Errorf("expected Uproot, got %v", plan.Kind)
	}
	if len(plan.MissingParents) != 1 || plan.MissingParents[0] != parent {
		t.Errorf("expected missing parent %v, got %v", parent, plan.MissingParents)
	}
}
