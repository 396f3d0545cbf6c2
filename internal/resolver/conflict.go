// SPDX-License-Identifier: MPL-2.0

package resolver

import "github.com/invowk/parcel/pkg/dependency"

// dedupe drops repeated entries, keeping the first occurrence.
func dedupe(entries []Entry) []Entry {
	seen := make(map[dependency.Dependency]bool, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if seen[e.Dependency] {
			continue
		}
		seen[e.Dependency] = true
		out = append(out, e)
	}
	return out
}

type conflictKey struct {
	name string
	dist dependency.Distribution
	arch dependency.Arch
}

func keyOf(e Entry) conflictKey {
	return conflictKey{name: e.Dependency.Name, dist: e.Dependency.Distribution, arch: e.Dependency.Arch}
}

// resolveConflicts collapses entries naming the same package, distribution and
// arch to the highest version, in the position of the group's first entry.
// With ExactVersions every entry is kept and each conflicting group is reported.
func (r *Resolver) resolveConflicts(s *session, entries []Entry) []Entry {
	if r.opts.ExactVersions {
		groups := make(map[conflictKey][]string)
		var order []conflictKey
		for _, e := range entries {
			k := keyOf(e)
			if _, ok := groups[k]; !ok {
				order = append(order, k)
			}
			groups[k] = append(groups[k], e.Dependency.Version.Min.String())
		}
		for _, k := range order {
			if versions := groups[k]; len(versions) > 1 {
				s.logger.Warn("several versions of a package will be installed, the last one overwrites the others",
					"package", k.name, "distribution", k.dist, "versions", versions)
			}
		}
		return entries
	}

	index := make(map[conflictKey]int)
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		k := keyOf(e)
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			out = append(out, e)
			continue
		}
		if out[i].Dependency.Version.Min.Less(e.Dependency.Version.Min) {
			s.logger.Debug("version conflict", "package", k.name, "dropped", out[i].Dependency.Version.Min, "kept", e.Dependency.Version.Min)
			out[i] = e
		}
	}
	return out
}
