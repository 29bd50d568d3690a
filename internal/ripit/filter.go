// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ripit

import (
	"regexp"
	"strings"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/ripit/internal/vcs"
)

const markerPrefix = "rip-it: "

// A MessageFilter rewrites commit messages, dropping lines that match any
// of a configured set of patterns and appending the provenance marker that
// binds a replicated commit back to its source. It corresponds to
// spec.md 4.1 and is grounded on the line-oriented text processing grit's
// own git/patch.go performs on diff bodies.
type MessageFilter struct {
	patterns []*regexp.Regexp
}

// NewMessageFilter compiles a set of whole-line regular expressions. Each
// pattern is anchored to match an entire line, mirroring the semantics of
// the original tool's regex::RegexSet (matched against the complete line).
func NewMessageFilter(patterns []string) (*MessageFilter, error) {
	f := &MessageFilter{}
	for _, p := range patterns {
		re, err := regexp.Compile("^(?:" + p + ")$")
		if err != nil {
			return nil, err
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

// Filter rewrites message: dropping lines matched by any configured
// pattern, collapsing runs of blank lines left behind, and appending the
// provenance marker for sourceID.
func (f *MessageFilter) Filter(message string, sourceID digest.Digest) string {
	return appendMarker(f.clean(message), sourceID)
}

// FilterUprooted is like Filter, but additionally appends the "(uprooted)"
// annotation line carried by automatically cherry-picked intermediate
// commits (spec.md 4.4, 6). The annotation precedes the marker, since the
// marker must remain the message's last line.
func (f *MessageFilter) FilterUprooted(message string, sourceID digest.Digest) string {
	body := AppendUprootedAnnotation(f.clean(message))
	return appendMarker(body, sourceID)
}

func (f *MessageFilter) clean(message string) string {
	lines := splitLines(message)
	var kept []string
	for _, line := range lines {
		if f.matches(line) {
			continue
		}
		kept = append(kept, line)
	}
	return collapseBlank(kept)
}

func (f *MessageFilter) matches(line string) bool {
	for _, re := range f.patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// splitLines splits message on line boundaries, preserving trailing
// whitespace on each line (only the boundary itself is consumed).
func splitLines(message string) []string {
	message = strings.TrimSuffix(message, "\n")
	if message == "" {
		return nil
	}
	return strings.Split(message, "\n")
}

// collapseBlank removes leading blank lines and collapses any run of two or
// more consecutive blank lines into a single blank line.
func collapseBlank(lines []string) string {
	var out []string
	blankRun := false
	started := false
	for _, line := range lines {
		if strings.TrimRight(line, " \t") == "" {
			if !started {
				continue
			}
			if blankRun {
				continue
			}
			blankRun = true
			out = append(out, "")
			continue
		}
		started = true
		blankRun = false
		out = append(out, line)
	}
	// Trailing blank lines left by a dropped tail are not meaningful
	// separators once we're about to append our own.
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

// appendMarker appends the provenance marker after exactly one blank line
// separator from body.
func appendMarker(body string, sourceID digest.Digest) string {
	marker := markerPrefix + sourceID.Hex()
	if body == "" {
		return marker + "\n"
	}
	return body + "\n\n" + marker + "\n"
}

// Marker returns the remote id recorded by message's trailing rip-it
// marker, if any.
func Marker(message string) (digest.Digest, bool) {
	lines := splitLines(message)
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimRight(lines[i], " \t")
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, markerPrefix) {
			return digest.Digest{}, false
		}
		id, err := vcs.SHA1.Parse(strings.TrimPrefix(line, markerPrefix))
		if err != nil {
			return digest.Digest{}, false
		}
		return id, true
	}
	return digest.Digest{}, false
}

// AppendUprootedAnnotation appends the "(uprooted)" annotation line that
// automatically cherry-picked intermediate commits carry in addition to
// their rip-it marker (spec.md 4.4). It must be called before the marker
// is appended, since the marker is always the last line of the message.
func AppendUprootedAnnotation(body string) string {
	if body == "" {
		return "(uprooted)"
	}
	return body + "\n\n(uprooted)"
}
