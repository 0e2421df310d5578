package advancer

import (
	"testing"
	"time"
)

func TestHumanizeDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30 seconds"},
		{1 * time.Second, "1 second"},
		{90 * time.Second, "1 minute"},
		{2 * time.Minute, "2 minutes"},
		{time.Hour, "1 hour"},
		{3 * time.Hour, "3 hours"},
		{25 * time.Hour, "1 day"},
	}
	for _, c := range cases {
		if got := humanizeDuration(c.d); got != c.want {
			t.Errorf("humanizeDuration(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}

func TestRoundString(t *testing.T) {
	cases := []struct {
		round int32
		want  string
	}{
		{1, "This is the final round!"},
		{2, "We're in the semifinals."},
		{3, "We're in the quarterfinals."},
		{4, "We're in the round of 16."},
	}
	for _, c := range cases {
		if got := roundString(c.round); got != c.want {
			t.Errorf("roundString(%d) = %q, want %q", c.round, got, c.want)
		}
	}
}
