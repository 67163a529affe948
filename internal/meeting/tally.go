package meeting

import (
	"fmt"
	"sort"
)

// ComputeTally counts votes per delta and picks the majority. It
// requires exactly one vote per configured role: a missing, duplicate or
// unexpected vote invalidates the stage.
//
// Tie-break, fixed and documented: among the deltas with the highest
// count, the status-quo delta (0) wins; failing that the smaller
// absolute delta wins; a remaining tie goes to the negative delta.
//
// A role whose vote differs from the majority is recorded as a
// dissenter; its dissent sentence is carried when the vote marked
// dissent=true.
func ComputeTally(votes []*Vote, roleIDs []string) (*Tally, error) {
	want := map[string]bool{}
	for _, id := range roleIDs {
		want[id] = true
	}
	byRole := map[string]*Vote{}
	for _, v := range votes {
		if v == nil {
			return nil, fmt.Errorf("meeting: tally: nil vote")
		}
		if !want[v.Role] {
			return nil, fmt.Errorf("meeting: tally: vote from unknown role %q", v.Role)
		}
		if byRole[v.Role] != nil {
			return nil, fmt.Errorf("meeting: tally: duplicate vote from %q", v.Role)
		}
		byRole[v.Role] = v
	}
	for _, id := range roleIDs {
		if byRole[id] == nil {
			return nil, fmt.Errorf("meeting: tally: no vote recorded for %q", id)
		}
	}

	counts := map[int]int{}
	for _, v := range byRole {
		counts[v.VoteDeltaBps]++
	}
	majority := majorityDelta(counts)

	t := &Tally{
		Counts:           counts,
		MajorityDeltaBps: majority,
		Total:            len(roleIDs),
	}
	for _, id := range roleIDs {
		v := byRole[id]
		if v.VoteDeltaBps == majority {
			continue
		}
		d := Dissenter{Role: id, DeltaBps: v.VoteDeltaBps}
		if v.Dissent {
			d.Sentence = v.DissentSentence
		}
		t.Dissenters = append(t.Dissenters, d)
	}
	return t, nil
}

func majorityDelta(counts map[int]int) int {
	deltas := make([]int, 0, len(counts))
	for d := range counts {
		deltas = append(deltas, d)
	}
	sort.Slice(deltas, func(i, j int) bool {
		a, b := deltas[i], deltas[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		if (a == 0) != (b == 0) {
			return a == 0
		}
		if abs(a) != abs(b) {
			return abs(a) < abs(b)
		}
		return a < b
	})
	return deltas[0]
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
