package eventlog

import (
	"fmt"
	"strings"
)

// Trail renders the anonymisation audit trail for one target as an indented
// listing. It windows the chronological log between the target's most recent
// recursion start and its most recent anonymise entry, nesting on the
// recursion markers. Depth-first anonymisation guarantees the markers nest
// correctly.
func Trail(all []Entry, entityType, pk string) string {
	startIdx, endIdx := -1, -1
	for i, e := range all {
		if e.EntityType != entityType || e.TargetPK != pk {
			continue
		}
		switch e.Event {
		case EventRecursiveStart:
			startIdx = i
		case EventAnonymise:
			endIdx = i
		}
	}
	if endIdx == -1 {
		return fmt.Sprintf("%s #%s is not anonymised yet.", entityType, pk)
	}
	if startIdx == -1 || startIdx > endIdx {
		// Leaf record: no recursion, single anonymise entry.
		startIdx = endIdx
	}

	start := all[startIdx]
	user := start.ActingUser
	if user == "" {
		user = "[non-descript user]"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s #%s starting to anonymise [by %s on %s].\n",
		entityType, pk, user, start.LogTime.Format("2006-01-02 15:04:05"))

	indent := 0
	tab := func() string { return strings.Repeat("\t", indent) }

	for _, e := range all[startIdx : endIdx+1] {
		switch e.Event {
		case EventRecursiveStart:
			fmt.Fprintf(&b, "%sStarting recursive for %s #%s.\n", tab(), e.EntityType, e.TargetPK)
			indent++
		case EventRecursiveEnd:
			if indent > 0 {
				indent--
			}
			fmt.Fprintf(&b, "%sEnding recursive for %s #%s.\n", tab(), e.EntityType, e.TargetPK)
		case EventAlreadyAnonymised:
			fmt.Fprintf(&b, "%s%s #%s already anonymised.\n", tab(), e.EntityType, e.TargetPK)
		case EventAnonymise:
			fmt.Fprintf(&b, "%s%s #%s flat fields anonymised.\n", tab(), e.EntityType, e.TargetPK)
		}
		if e.ErrorMessage != "" {
			fmt.Fprintf(&b, "%s%s\n", tab(), e.Summary())
		}
	}
	return b.String()
}
