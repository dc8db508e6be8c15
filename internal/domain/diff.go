package domain

import "htnlearn/internal/schema"

// DiffReport is the per-task comparison result of the htndiff-style
// domain comparison supplemented feature: which task heads only one
// domain's methods cover, and which heads both cover but with methods
// that are not mutually subsuming (symmetric subsumption = identical,
// per original_source/htndiff.cpp).
type DiffReport struct {
	OnlyInFirst  []string // task heads with methods only the receiver has
	OnlyInSecond []string // task heads with methods only other has
	Differing    []string // task heads both have, but the method sets aren't equivalent
	Identical    []string // task heads where every method pair is mutually subsuming
}

// Diff compares d against other, method-set by method-set per task head.
// subsumes decides whether m1 is at least as general as m2 (the same
// relation internal/learn.Subsumes implements for C10); two method sets
// are equivalent iff every method has a mutually subsuming counterpart
// in the other set.
func (d *Domain) Diff(other *Domain, subsumes func(m1, m2 *schema.HtnMethod) bool) *DiffReport {
	report := &DiffReport{}
	heads := map[string]bool{}
	for _, m := range d.Methods {
		heads[m.Head.Symbol] = true
	}
	for _, m := range other.Methods {
		heads[m.Head.Symbol] = true
	}

	for head := range heads {
		mine := d.MethodsForTask(head)
		theirs := other.MethodsForTask(head)
		switch {
		case len(mine) > 0 && len(theirs) == 0:
			report.OnlyInFirst = append(report.OnlyInFirst, head)
		case len(mine) == 0 && len(theirs) > 0:
			report.OnlyInSecond = append(report.OnlyInSecond, head)
		default:
			if methodSetsEquivalent(mine, theirs, subsumes) {
				report.Identical = append(report.Identical, head)
			} else {
				report.Differing = append(report.Differing, head)
			}
		}
	}
	return report
}

func methodSetsEquivalent(a, b []*schema.HtnMethod, subsumes func(m1, m2 *schema.HtnMethod) bool) bool {
	if len(a) != len(b) {
		return false
	}
	matched := make([]bool, len(b))
	for _, ma := range a {
		found := false
		for j, mb := range b {
			if matched[j] {
				continue
			}
			if subsumes(ma, mb) && subsumes(mb, ma) {
				matched[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
