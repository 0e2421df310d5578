package bracket

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestGenerateSeedsRound3(t *testing.T) {
	got := GenerateSeeds(3)
	want := []int{0, 7, 3, 4, 1, 6, 2, 5}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GenerateSeeds(3) = %v, want %v", got, want)
	}
}

func TestGenerateSeedsPairSum(t *testing.T) {
	for rounds := 1; rounds <= 5; rounds++ {
		seeds := GenerateSeeds(rounds)
		n := 1 << uint(rounds)
		if len(seeds) != n {
			t.Fatalf("rounds=%d: len(seeds)=%d, want %d", rounds, len(seeds), n)
		}
		seen := make(map[int]bool, n)
		for i := 0; i < n/2; i++ {
			a, b := seeds[2*i], seeds[2*i+1]
			if a+b != n-1 {
				t.Errorf("rounds=%d pair (%d,%d) sums to %d, want %d", rounds, a, b, a+b, n-1)
			}
			seen[a], seen[b] = true, true
		}
		if len(seen) != n {
			t.Errorf("rounds=%d: seeds are not a permutation of 0..%d", rounds, n-1)
		}
	}
}

func TestRoundLayout(t *testing.T) {
	// rounds=3: round 3 occupies [0,4), round 2 occupies [4,6), round 1 occupies [6,7).
	if got := RoundStartIndex(3, 3); got != 0 {
		t.Errorf("RoundStartIndex(3,3) = %d, want 0", got)
	}
	if got := RoundStartIndex(3, 2); got != 4 {
		t.Errorf("RoundStartIndex(3,2) = %d, want 4", got)
	}
	if got := RoundStartIndex(3, 1); got != 6 {
		t.Errorf("RoundStartIndex(3,1) = %d, want 6", got)
	}
	if got := RoundMatchupCount(3); got != 4 {
		t.Errorf("RoundMatchupCount(3) = %d, want 4", got)
	}
	if got := RoundMatchupCount(1); got != 1 {
		t.Errorf("RoundMatchupCount(1) = %d, want 1", got)
	}
}

func TestSeedBucketing(t *testing.T) {
	entries := []WeightedEntry{
		{AnimationID: "a", Weight: 3},
		{AnimationID: "b", Weight: 3},
		{AnimationID: "c", Weight: 2},
		{AnimationID: "d", Weight: 2},
		{AnimationID: "e", Weight: 1},
		{AnimationID: "f", Weight: 1},
		{AnimationID: "g", Weight: 1},
		{AnimationID: "h", Weight: 1},
	}
	rng := rand.New(rand.NewSource(1))
	seeded, err := Seed(entries, 8, rng)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(seeded) != 8 {
		t.Fatalf("len(seeded) = %d, want 8", len(seeded))
	}
	// weight-3 entries must occupy seeds 0-1 (highest weight first).
	top := map[string]bool{seeded[0]: true, seeded[1]: true}
	if !top["a"] || !top["b"] {
		t.Errorf("seeded[0:2] = %v, want {a,b} in some order", seeded[:2])
	}
}

func TestSeedNotEnoughSubmissions(t *testing.T) {
	entries := []WeightedEntry{{AnimationID: "a", Weight: 1}}
	rng := rand.New(rand.NewSource(1))
	_, err := Seed(entries, 8, rng)
	nerr, ok := err.(*NotEnoughSubmissionsError)
	if !ok {
		t.Fatalf("expected *NotEnoughSubmissionsError, got %v", err)
	}
	if nerr.Actual != 1 || nerr.Needed != 8 {
		t.Errorf("got Actual=%d Needed=%d, want 1,8", nerr.Actual, nerr.Needed)
	}
}

func TestPlanFirstRoundPairing(t *testing.T) {
	seeded := []string{"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7"}
	roundLengths := []int{60, 120, 180}
	plans := Plan(seeded, 3, roundLengths)

	if len(plans) != 7 {
		t.Fatalf("len(plans) = %d, want 7", len(plans))
	}
	// First round (round 3) indices 0..3 use the pinned seed sequence
	// S=[0,7,3,4,1,6,2,5] -> pairs (s0,s7),(s3,s4),(s1,s6),(s2,s5).
	wantPairs := [][2]string{{"s0", "s7"}, {"s3", "s4"}, {"s1", "s6"}, {"s2", "s5"}}
	for i, want := range wantPairs {
		p := plans[i]
		if p.Round != 3 || p.Index != i {
			t.Errorf("plan[%d]: round=%d index=%d, want round=3 index=%d", i, p.Round, p.Index, i)
		}
		if *p.AnimationA != want[0] || *p.AnimationB != want[1] {
			t.Errorf("plan[%d] pair = (%s,%s), want (%s,%s)", i, *p.AnimationA, *p.AnimationB, want[0], want[1])
		}
		if p.DurationSecs != roundLengths[2] {
			t.Errorf("plan[%d].DurationSecs = %d, want %d", i, p.DurationSecs, roundLengths[2])
		}
	}
	// Placeholders for round 2 (indices 4,5) and round 1 (index 6).
	for i := 4; i < 6; i++ {
		if plans[i].Round != 2 || plans[i].AnimationA != nil || plans[i].AnimationB != nil {
			t.Errorf("plan[%d] = %+v, want round=2 with nil animations", i, plans[i])
		}
	}
	if plans[6].Round != 1 || plans[6].Index != 6 {
		t.Errorf("plan[6] = %+v, want round=1 index=6", plans[6])
	}
}
