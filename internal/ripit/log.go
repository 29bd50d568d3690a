// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ripit

import "github.com/grailbio/base/log"

// progressf reports a narrative progress line, unless quiet asked for
// silence, in which case it's downgraded to Debug (still visible with
// increased verbosity, matching the teacher's own convention of demoting
// chatty messages rather than dropping them outright).
func progressf(quiet bool, format string, args ...interface{}) {
	if quiet {
		log.Debug.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
