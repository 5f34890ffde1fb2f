package dialog

import (
	"sync"
	"testing"
	"time"

	"github.com/mtbar/concerts/pkg/models"
)

func TestSelect(t *testing.T) {
	m := NewManager()
	if got := m.Selected(1); got != 0 {
		t.Fatalf("expected no selection, got %d", got)
	}

	m.Select(1, 42)
	if got := m.Selected(1); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if got := m.Selected(2); got != 0 {
		t.Errorf("selection leaked into another conversation: %d", got)
	}
}

func TestTakeResetsToIdle(t *testing.T) {
	m := NewManager()
	m.AwaitField(1, 5, models.FieldDescription)

	st := m.Take(1)
	if st.Kind != AwaitingField || st.EventID != 5 || st.Field != models.FieldDescription {
		t.Fatalf("unexpected state %+v", st)
	}
	if got := m.Current(1).Kind; got != Idle {
		t.Errorf("expected idle after Take, got %s", got)
	}
}

func TestNewAwaitReplacesPrevious(t *testing.T) {
	m := NewManager()
	m.AwaitDisambiguation(1, "Alpha — 5 марта", "5 марта", []int64{1, 2})
	m.AwaitPhotoTarget(1, 3, 9)

	st := m.Current(1)
	if st.Kind != AwaitingPhotoTarget || st.PhotoID != 9 || st.EventID != 3 {
		t.Fatalf("expected photo target state, got %+v", st)
	}
	if len(st.Candidates) != 0 {
		t.Errorf("stale candidates kept: %v", st.Candidates)
	}
}

func TestSelectionSurvivesStateChanges(t *testing.T) {
	m := NewManager()
	m.Select(1, 7)
	m.AwaitField(1, 7, models.FieldDate)
	m.Reset(1)

	if got := m.Selected(1); got != 7 {
		t.Errorf("expected selection to survive reset, got %d", got)
	}
}

func TestHasCandidate(t *testing.T) {
	st := State{Candidates: []int64{3, 4}}
	if !st.HasCandidate(4) || st.HasCandidate(5) {
		t.Error("unexpected candidate membership")
	}
}

func TestEnqueueKeepsArrivalOrder(t *testing.T) {
	m := NewManager()

	var (
		mu      sync.Mutex
		order   []int
		running int
		overlap bool
	)
	for i := 0; i < 20; i++ {
		m.Enqueue(1, func() {
			mu.Lock()
			running++
			if running > 1 {
				overlap = true
			}
			mu.Unlock()

			// earlier jobs run longer
			time.Sleep(time.Duration(20-i) * time.Millisecond / 4)

			mu.Lock()
			running--
			order = append(order, i)
			mu.Unlock()
		})
	}
	m.Wait()

	if overlap {
		t.Error("jobs of one conversation overlapped")
	}
	if len(order) != 20 {
		t.Fatalf("expected 20 jobs, got %d", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("job %d ran at position %d: %v", got, i, order)
		}
	}
}

func TestEnqueueIndependentConversations(t *testing.T) {
	m := NewManager()
	release := make(chan struct{})
	m.Enqueue(1, func() { <-release })

	done := make(chan struct{})
	m.Enqueue(2, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a busy conversation blocked another one")
	}

	close(release)
	m.Wait()
}

func TestEnqueueAfterDrain(t *testing.T) {
	m := NewManager()

	calls := 0
	m.Enqueue(1, func() { calls++ })
	m.Wait()
	m.Enqueue(1, func() { calls++ })
	m.Wait()

	if calls != 2 {
		t.Errorf("expected both jobs to run, got %d", calls)
	}
}
