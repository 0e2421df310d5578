package pollfanin

import (
	"testing"

	"github.com/kartikbazzad/gifdome/internal/chatmodel"
)

func TestCoalesceKeepsHighestUpdateIDPerPoll(t *testing.T) {
	ch := make(chan Update, 4)
	ch <- Update{UpdateID: 2, Poll: chatmodel.Poll{ID: "poll-1"}}
	ch <- Update{UpdateID: 5, Poll: chatmodel.Poll{ID: "poll-2"}}
	ch <- Update{UpdateID: 4, Poll: chatmodel.Poll{ID: "poll-1"}}

	got := coalesce(Update{UpdateID: 1, Poll: chatmodel.Poll{ID: "poll-1"}}, ch)
	if got.UpdateID != 4 {
		t.Errorf("coalesce() = update_id %d, want 4", got.UpdateID)
	}
}

func TestCoalesceStopsAtEmptyChannel(t *testing.T) {
	ch := make(chan Update)
	got := coalesce(Update{UpdateID: 7, Poll: chatmodel.Poll{ID: "poll-1"}}, ch)
	if got.UpdateID != 7 {
		t.Errorf("coalesce() = update_id %d, want 7 (no other updates queued)", got.UpdateID)
	}
}

func TestCoalesceIgnoresOtherPollsForReturnValue(t *testing.T) {
	ch := make(chan Update, 1)
	ch <- Update{UpdateID: 99, Poll: chatmodel.Poll{ID: "poll-2"}}

	got := coalesce(Update{UpdateID: 1, Poll: chatmodel.Poll{ID: "poll-1"}}, ch)
	if got.UpdateID != 1 || got.Poll.ID != "poll-1" {
		t.Errorf("coalesce() = %+v, want the poll-1 update unchanged", got)
	}
}
