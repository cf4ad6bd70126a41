/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lobby

import "strings"

// SessionIDFromPath returns the last non-empty segment of path. It reports
// false when there is none, meaning no session is selected.
func SessionIDFromPath(path string) (string, bool) {
	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(segments[i]); s != "" {
			return s, true
		}
	}

	return "", false
}
