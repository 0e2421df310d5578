package submission

import "testing"

func TestTimesPhrase(t *testing.T) {
	cases := []struct {
		n    int
		want string
	}{
		{1, "once"},
		{2, "twice"},
		{3, "3 times"},
		{10, "10 times"},
	}
	for _, c := range cases {
		if got := timesPhrase(c.n); got != c.want {
			t.Errorf("timesPhrase(%d) = %q, want %q", c.n, got, c.want)
		}
	}
}
