package transcript

// ResolveActive filters entries down to the single active linear subsequence,
// in original order. A log can contain duplicate ids (compaction) and multiple
// children for one parent (rewind-and-resend); only the path from the current
// tip back to the root is active. resumePointID, when non-empty and found to
// be an ancestor of the tip, re-targets the tip to that entry: a rewind with
// no follow-up message yet.
func ResolveActive(entries []RawEntry, resumePointID string) []RawEntry {
	deduped := dedupeByID(entries)

	byID := make(map[string]*RawEntry, len(deduped))
	children := make(map[string]map[string]bool)
	hasID := false
	for i := range deduped {
		e := &deduped[i]
		if e.ID == "" {
			continue
		}
		hasID = true
		byID[e.ID] = e
		if e.ParentID != "" {
			set := children[e.ParentID]
			if set == nil {
				set = make(map[string]bool)
				children[e.ParentID] = set
			}
			set[e.ID] = true
		}
	}

	// Degraded case: nothing to walk, treat the whole log as active.
	if !hasID {
		return deduped
	}

	branching := false
	for _, set := range children {
		if len(set) > 1 {
			branching = true
			break
		}
	}

	active := make(map[string]bool)
	if !branching {
		if resumePointID != "" {
			if _, ok := byID[resumePointID]; ok {
				walkToRoot(byID, resumePointID, active)
			} else {
				markAll(deduped, active)
			}
		} else {
			markAll(deduped, active)
		}
	} else {
		tip := pickTip(deduped, children)
		if resumePointID != "" && isAncestor(byID, tip, resumePointID) {
			tip = resumePointID
		}
		walkToRoot(byID, tip, active)
	}

	admitted := admitOrphans(deduped, active)

	out := make([]RawEntry, 0, len(deduped))
	for i, e := range deduped {
		if e.ID == "" {
			if admitted[i] {
				out = append(out, e)
			}
			continue
		}
		if active[e.ID] {
			out = append(out, e)
		}
	}
	return out
}

// dedupeByID keeps only the first occurrence of each id. Entries without an
// id are always kept.
func dedupeByID(entries []RawEntry) []RawEntry {
	seen := make(map[string]bool, len(entries))
	out := make([]RawEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID != "" {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
		}
		out = append(out, e)
	}
	return out
}

// pickTip scans in reverse file order and takes the first id-bearing entry
// with no recorded children: the most recently appended leaf. Robust to
// trailing side-records that are not children of anything.
func pickTip(entries []RawEntry, children map[string]map[string]bool) string {
	for i := len(entries) - 1; i >= 0; i-- {
		id := entries[i].ID
		if id == "" {
			continue
		}
		if len(children[id]) == 0 {
			return id
		}
	}
	return ""
}

// isAncestor reports whether candidate lies on the parent chain from tip to
// the root (inclusive of tip itself).
func isAncestor(byID map[string]*RawEntry, tip, candidate string) bool {
	seen := make(map[string]bool)
	for id := tip; id != "" && !seen[id]; {
		if id == candidate {
			return true
		}
		seen[id] = true
		e, ok := byID[id]
		if !ok {
			return false
		}
		id = e.ParentID
	}
	return false
}

func walkToRoot(byID map[string]*RawEntry, tip string, active map[string]bool) {
	for id := tip; id != "" && !active[id]; {
		e, ok := byID[id]
		if !ok {
			break
		}
		active[id] = true
		id = e.ParentID
	}
}

func markAll(entries []RawEntry, active map[string]bool) {
	for _, e := range entries {
		if e.ID != "" {
			active[e.ID] = true
		}
	}
}

// admitOrphans marks id-less entries whose nearest id-bearing neighbors on
// both sides (in file order) are active. Two linear sweeps, not a tree walk:
// a forward pass propagating the last seen active state and a backward pass
// propagating the next seen active state.
func admitOrphans(entries []RawEntry, active map[string]bool) []bool {
	n := len(entries)
	admitted := make([]bool, n)
	prevActive := make([]bool, n)
	last := true // no preceding id-bearing neighbor counts as unconstrained
	for i := 0; i < n; i++ {
		prevActive[i] = last
		if entries[i].ID != "" {
			last = active[entries[i].ID]
		}
	}
	next := true
	for i := n - 1; i >= 0; i-- {
		if entries[i].ID == "" {
			admitted[i] = prevActive[i] && next
		} else {
			next = active[entries[i].ID]
		}
	}
	return admitted
}
