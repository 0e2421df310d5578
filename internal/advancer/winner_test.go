package advancer

import "testing"

func TestWinnerOf(t *testing.T) {
	a, b := "a", "b"
	m := matchupRow{AnimA: &a, AnimB: &b, VotesA: 5, VotesB: 3}
	winner, err := winnerOf(m)
	if err != nil {
		t.Fatalf("winnerOf: %v", err)
	}
	if winner == nil || *winner != "a" {
		t.Errorf("winnerOf = %v, want a", winner)
	}
}

func TestWinnerOfTieIsIntegrityError(t *testing.T) {
	a, b := "a", "b"
	m := matchupRow{AnimA: &a, AnimB: &b, VotesA: 3, VotesB: 3}
	_, err := winnerOf(m)
	if err == nil {
		t.Fatal("expected an error on tied votes")
	}
}
