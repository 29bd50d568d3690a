// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package vcs implements the low-level repository operations ripit's
// replication engine is built on: reading and writing commits, applying
// trees to the working copy, computing three-way merges, and moving refs.
// It knows nothing about correspondence maps, provenance markers, or replay
// plans -- it is a narrow collaborator the engine drives, shelling out to
// the system git binary the same way grit's git.Repo does.
package vcs

import (
	"bytes"
	"crypto"
	_ "crypto/sha1"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/base/log"
)

// SHA1 is the digester used to parse and format commit and tree ids.
var SHA1 = digest.Digester(crypto.SHA1)

// ZeroID is the digest used to mean "this ref does not yet exist" when
// passed to UpdateRef.
var ZeroID digest.Digest

// A Repo is a git repository rooted at a local working directory. Unlike
// grit's cache-keyed clones of remote urls, a Repo here is simply opened at
// a path the caller already manages; ripit performs no cloning and holds no
// lock on it (see the concurrency model in SPEC_FULL.md: the engine assumes
// exclusive access).
type Repo struct {
	root string
}

// Open opens the git repository rooted at path. path must already be a
// git working directory (e.g. the output of "git init" or "git clone").
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	r := &Repo{root: abs}
	if _, err := r.git(nil, "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("open %s: %v", path, err)
	}
	return r, nil
}

func (r *Repo) String() string { return r.root }

// Fetch fetches all branches from the named remote.
func (r *Repo) Fetch(remote string) error {
	_, err := r.git(nil, "fetch", remote)
	return err
}

// ResolveRef resolves a ref (e.g. "refs/heads/master" or
// "refs/remotes/origin/master") to a commit id. The returned ok is false if
// the ref does not exist.
func (r *Repo) ResolveRef(ref string) (id digest.Digest, ok bool, err error) {
	out, err := r.git(nil, "rev-parse", "--verify", "--quiet", ref)
	if err != nil {
		return digest.Digest{}, false, nil
	}
	id, err = SHA1.Parse(strings.TrimSpace(string(out)))
	if err != nil {
		return digest.Digest{}, false, err
	}
	return id, true, nil
}

// UpdateRef moves ref to point at newID. If oldID is the zero digest, the
// ref is created; otherwise git verifies the ref currently points at oldID
// before moving it, so that two concurrent replications of the same branch
// can't race past each other unnoticed.
func (r *Repo) UpdateRef(ref string, newID, oldID digest.Digest) error {
	args := []string{"update-ref", ref, newID.Hex()}
	if oldID != ZeroID {
		args = append(args, oldID.Hex())
	}
	_, err := r.git(nil, args...)
	return err
}

// IsClean reports whether the working tree and index are clean relative to
// HEAD. When it is not, dirty holds the offending paths, as reported by
// "git status --porcelain".
func (r *Repo) IsClean() (clean bool, dirty []string, err error) {
	out, err := r.git(nil, "status", "--porcelain")
	if err != nil {
		return false, nil, err
	}
	out = bytes.TrimRight(out, "\n")
	if len(out) == 0 {
		return true, nil, nil
	}
	for _, line := range bytes.Split(out, []byte("\n")) {
		if len(line) < 4 {
			continue
		}
		dirty = append(dirty, string(line[3:]))
	}
	return false, dirty, nil
}

// A Signature identifies the author or committer of a commit.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

func (s Signature) String() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

func (s Signature) env(kind string) []string {
	return []string{
		"GIT_" + kind + "_NAME=" + s.Name,
		"GIT_" + kind + "_EMAIL=" + s.Email,
		"GIT_" + kind + "_DATE=" + s.When.Format(time.RFC3339),
	}
}

// A Commit is the information ripit needs from a git commit object: its
// parents, root tree, signatures, and message. It deliberately mirrors only
// what the replication engine consumes, not every field of the underlying
// git object.
type Commit struct {
	ID        digest.Digest
	Tree      digest.Digest
	Parents   []digest.Digest
	Author    Signature
	Committer Signature
	Message   string
}

// ReadCommit reads and parses the commit named by id from the object
// store, using "git cat-file -p" to obtain the raw, unambiguous object
// format (tree/parent/author/committer headers followed by a blank line
// and the message).
func (r *Repo) ReadCommit(id digest.Digest) (*Commit, error) {
	out, err := r.git(nil, "cat-file", "-p", id.Hex())
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %v", id.Hex()[:7], err)
	}
	c := &Commit{ID: id}
	body := out
	for {
		i := bytes.IndexByte(body, '\n')
		if i < 0 {
			return nil, fmt.Errorf("read commit %s: truncated header", id.Hex()[:7])
		}
		line := body[:i]
		body = body[i+1:]
		if len(line) == 0 {
			break
		}
		fields := bytes.SplitN(line, []byte(" "), 2)
		if len(fields) != 2 {
			continue
		}
		key, val := string(fields[0]), string(fields[1])
		switch key {
		case "tree":
			if c.Tree, err = SHA1.Parse(val); err != nil {
				return nil, fmt.Errorf("read commit %s: bad tree: %v", id.Hex()[:7], err)
			}
		case "parent":
			p, err := SHA1.Parse(val)
			if err != nil {
				return nil, fmt.Errorf("read commit %s: bad parent: %v", id.Hex()[:7], err)
			}
			c.Parents = append(c.Parents, p)
		case "author":
			if c.Author, err = parseSignature(val); err != nil {
				return nil, fmt.Errorf("read commit %s: bad author: %v", id.Hex()[:7], err)
			}
		case "committer":
			if c.Committer, err = parseSignature(val); err != nil {
				return nil, fmt.Errorf("read commit %s: bad committer: %v", id.Hex()[:7], err)
			}
		}
	}
	c.Message = string(body)
	return c, nil
}

// parseSignature parses a git commit header value of the form
// "Name <email> <unix-seconds> <+/-HHMM>".
func parseSignature(s string) (Signature, error) {
	i := strings.LastIndex(s, ">")
	if i < 0 {
		return Signature{}, fmt.Errorf("malformed signature %q", s)
	}
	namePart := strings.TrimSpace(s[:i+1])
	rest := strings.Fields(s[i+1:])
	if len(rest) != 2 {
		return Signature{}, fmt.Errorf("malformed signature %q", s)
	}
	sec, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("malformed signature timestamp %q", s)
	}
	loc, err := parseTZ(rest[1])
	if err != nil {
		return Signature{}, err
	}
	j := strings.LastIndex(namePart, "<")
	if j < 0 {
		return Signature{}, fmt.Errorf("malformed signature %q", s)
	}
	name := strings.TrimSpace(namePart[:j])
	email := strings.TrimSuffix(strings.TrimPrefix(namePart[j:], "<"), ">")
	return Signature{
		Name:  name,
		Email: email,
		When:  time.Unix(sec, 0).In(loc),
	}, nil
}

func parseTZ(tz string) (*time.Location, error) {
	if len(tz) != 5 {
		return nil, fmt.Errorf("malformed timezone %q", tz)
	}
	sign := 1
	if tz[0] == '-' {
		sign = -1
	} else if tz[0] != '+' {
		return nil, fmt.Errorf("malformed timezone %q", tz)
	}
	hh, err := strconv.Atoi(tz[1:3])
	if err != nil {
		return nil, fmt.Errorf("malformed timezone %q", tz)
	}
	mm, err := strconv.Atoi(tz[3:5])
	if err != nil {
		return nil, fmt.Errorf("malformed timezone %q", tz)
	}
	offset := sign * (hh*3600 + mm*60)
	return time.FixedZone(tz, offset), nil
}

// Checkout resets the index and working tree to exactly match tree. The
// engine uses it to bring a checked-out branch's working tree in line with
// its new tip after replay or bootstrap.
func (r *Repo) Checkout(tree digest.Digest) error {
	_, err := r.git(nil, "read-tree", "--reset", "-u", tree.Hex())
	return err
}

// MergeTree computes a three-way merge of ours and theirs against base,
// without touching the working tree. It reports the resulting tree and,
// when the merge is not clean, the set of conflicted paths.
func (r *Repo) MergeTree(base, ours, theirs digest.Digest) (tree digest.Digest, conflicts []string, err error) {
	out, mergeErr := r.git(nil, "merge-tree", "--write-tree", "--name-only",
		"-z", "--merge-base="+base.Hex(), ours.Hex(), theirs.Hex())
	fields := bytes.Split(bytes.TrimRight(out, "\x00"), []byte{0})
	if len(fields) == 0 || len(fields[0]) == 0 {
		return digest.Digest{}, nil, fmt.Errorf("merge-tree %s %s %s: empty output", base, ours, theirs)
	}
	tree, perr := SHA1.Parse(string(fields[0]))
	if perr != nil {
		return digest.Digest{}, nil, fmt.Errorf("merge-tree %s %s %s: %v", base, ours, theirs, perr)
	}
	if mergeErr == nil {
		return tree, nil, nil
	}
	for _, f := range fields[1:] {
		if len(f) == 0 {
			// An empty field ends the conflicted-path list; what follows
			// is git's informational messages.
			break
		}
		conflicts = append(conflicts, string(f))
	}
	if len(conflicts) == 0 {
		return digest.Digest{}, nil, mergeErr
	}
	return tree, conflicts, nil
}

// CheckoutConflicted materializes a conflicted three-way merge into the
// index and working tree, leaving the usual "<<<<<<<" conflict markers in
// place for the user to resolve by hand (spec.md 4.5.3). conflictTree is
// the tree MergeTree returned alongside its conflicted path list: git
// merge-tree has already merged file content where it could and embedded
// markers where it could not, so checking it out directly is enough to
// reproduce the conflicted state a "git merge" would have left behind.
func (r *Repo) CheckoutConflicted(conflictTree digest.Digest) error {
	_, err := r.git(nil, "read-tree", "--reset", "-u", conflictTree.Hex())
	return err
}

// MergeBase returns the best common ancestor of a and b.
func (r *Repo) MergeBase(a, b digest.Digest) (digest.Digest, error) {
	out, err := r.git(nil, "merge-base", a.Hex(), b.Hex())
	if err != nil {
		return digest.Digest{}, err
	}
	return SHA1.Parse(strings.TrimSpace(string(out)))
}

// CurrentBranch returns the name of the branch HEAD is attached to, if any.
func (r *Repo) CurrentBranch() (name string, ok bool, err error) {
	out, err := r.git(nil, "symbolic-ref", "--short", "-q", "HEAD")
	if err != nil {
		return "", false, nil
	}
	return strings.TrimSpace(string(out)), true, nil
}

// CommitTree creates a new commit object with the given tree, parents,
// signatures, and message, returning its id. It does not move any ref.
func (r *Repo) CommitTree(tree digest.Digest, parents []digest.Digest, author, committer Signature, message string) (digest.Digest, error) {
	args := []string{"commit-tree", tree.Hex()}
	for _, p := range parents {
		args = append(args, "-p", p.Hex())
	}
	env := append(append(os.Environ(), author.env("AUTHOR")...), committer.env("COMMITTER")...)
	out, err := r.gitEnv(env, []byte(message), args...)
	if err != nil {
		return digest.Digest{}, err
	}
	return SHA1.Parse(strings.TrimSpace(string(out)))
}

// BranchRef returns the full ref path for a local branch name.
func BranchRef(branch string) string { return "refs/heads/" + branch }

// RemoteRef returns the full ref path for a branch tracked from a remote.
func RemoteRef(remote, branch string) string { return "refs/remotes/" + remote + "/" + branch }

func (r *Repo) git(stdin []byte, arg ...string) ([]byte, error) {
	return r.gitEnv(os.Environ(), stdin, arg...)
}

func (r *Repo) gitEnv(env []string, stdin []byte, arg ...string) ([]byte, error) {
	args := append([]string{"-C", r.root}, arg...)
	cmd := exec.Command("git", args...)
	cmd.Env = env
	var in io.Reader
	if stdin != nil {
		in = bytes.NewReader(stdin)
	}
	cmd.Stdin = in
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	log.Debug.Printf("%s: git %s", r.root, strings.Join(arg, " "))
	if err := cmd.Run(); err != nil {
		outerr := stderr.String()
		if outerr != "" {
			outerr = "\n" + outerr
		}
		return out.Bytes(), fmt.Errorf("%s: git %s: %v%s", r.root, strings.Join(arg, " "), err, outerr)
	}
	return out.Bytes(), nil
}
