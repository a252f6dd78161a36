package sync

import "testing"

func TestStatusTerminal(t *testing.T) {
	for st, want := range map[Status]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusCancelled: true,
	} {
		if got := st.Terminal(); got != want {
			t.Errorf("expected Terminal() of %s to be %t", st, want)
		}
	}
}

func TestRunApplyIsAdditive(t *testing.T) {
	var r Run
	r.apply(Progress{Total: 5, Processed: 5, Inserted: 3, Updated: 1, Skipped: 1, LastReference: "B"})
	r.apply(Progress{Total: 2, Processed: 2, Errors: 1, ErrorDetails: []string{"After ref 'B': boom"}, LastReference: "D"})
	if r.TotalRecords != 7 || r.ProcessedRecords != 7 || r.InsertedRecords != 3 {
		t.Errorf("expected counters to accumulate, got %+v", r)
	}
	if r.ErrorCount != 1 || len(r.ErrorDetails) != 1 {
		t.Errorf("expected one error carried over, got %+v", r)
	}
	if r.LastReference != "D" {
		t.Errorf("expected the cursor at the newest delta, got %q", r.LastReference)
	}
}

func TestRunApplyKeepsCursorOnEmptyDelta(t *testing.T) {
	r := Run{LastReference: "C"}
	r.apply(Progress{Total: 1, Processed: 1, Skipped: 1})
	if r.LastReference != "C" {
		t.Errorf("expected an empty cursor delta not to move the cursor, got %q", r.LastReference)
	}
}
