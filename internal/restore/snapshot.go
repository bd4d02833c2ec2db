package restore

import "strings"

// CopyTargetID derives the identifier for the re-encrypted copy of a
// snapshot. The derivation is deterministic so a re-run finds the copy made
// by an earlier run instead of creating another one.
func CopyTargetID(snapshotID string) string {
	return sanitizeSnapshotID(snapshotID) + "-copy"
}

// sanitizeSnapshotID turns an arbitrary snapshot identifier or ARN into a
// valid RDS snapshot identifier: lowercase letters, digits and single
// hyphens, starting with a letter, no leading or trailing hyphen.
func sanitizeSnapshotID(id string) string {
	// ARNs carry the bare identifier after the last colon.
	if i := strings.LastIndex(id, ":"); i >= 0 {
		id = id[i+1:]
	}
	id = strings.ToLower(id)

	var b strings.Builder
	lastHyphen := false
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == '-':
			if !lastHyphen && b.Len() > 0 {
				b.WriteRune('-')
			}
			lastHyphen = true
		}
	}

	s := strings.TrimRight(b.String(), "-")
	if s == "" || !(s[0] >= 'a' && s[0] <= 'z') {
		s = "a" + s
	}
	return s
}
