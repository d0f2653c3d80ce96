package bridge

import "testing"

func TestPushReadyOrdersByEffectiveArrival(t *testing.T) {
	b := New()
	b.PushReady([]ReadyTask{
		{EffectiveArrivalTime: 10, DAGID: 1, TID: 0},
		{EffectiveArrivalTime: 3, DAGID: 2, TID: 0},
	})
	b.PushReady([]ReadyTask{
		{EffectiveArrivalTime: 3, DAGID: 3, TID: 0}, // ties with dag 2, must stay after it (stable)
	})

	got := b.PeekReady()
	if len(got) != 3 {
		t.Fatalf("expected 3 ready tasks, got %d", len(got))
	}
	if got[0].DAGID != 2 || got[1].DAGID != 3 || got[2].DAGID != 1 {
		t.Fatalf("expected stable order [2,3,1], got [%d,%d,%d]", got[0].DAGID, got[1].DAGID, got[2].DAGID)
	}
	if b.NextArrivalTime() != 3 {
		t.Fatalf("expected NextArrivalTime 3, got %d", b.NextArrivalTime())
	}
}

func TestTakeReadyRemovesAndRefreshesHead(t *testing.T) {
	b := New()
	b.PushReady([]ReadyTask{
		{EffectiveArrivalTime: 1, DAGID: 1, TID: 0},
		{EffectiveArrivalTime: 2, DAGID: 2, TID: 0},
	})

	task, ok := b.TakeReady(1, 0)
	if !ok || task.DAGID != 1 {
		t.Fatalf("expected to take dag 1, got %+v ok=%v", task, ok)
	}
	if b.Len() != 1 {
		t.Fatalf("expected 1 remaining, got %d", b.Len())
	}
	if b.NextArrivalTime() != 2 {
		t.Fatalf("expected next arrival 2, got %d", b.NextArrivalTime())
	}

	if _, ok := b.TakeReady(99, 0); ok {
		t.Fatalf("expected miss for unknown descriptor")
	}
}

func TestEmptyQueueNextArrivalIsInfinite(t *testing.T) {
	b := New()
	if b.Len() != 0 {
		t.Fatalf("expected empty queue")
	}
	if b.NextArrivalTime() <= 1<<40 {
		t.Fatalf("expected +inf sentinel, got %d", b.NextArrivalTime())
	}
}

func TestCompletionQueueDrainIsFIFOAndClearsFlag(t *testing.T) {
	b := New()
	b.PushCompletion(Completion{DAGID: 1, TID: 0, ArrivalTimeEnqueued: 0, ActualServiceTime: 5})
	b.PushCompletion(Completion{DAGID: 1, TID: 1, ArrivalTimeEnqueued: 5, ActualServiceTime: 3})

	if !b.TaskCompletedFlag() {
		t.Fatalf("expected flag raised after push")
	}

	got := b.DrainCompletions()
	if len(got) != 2 || got[0].TID != 0 || got[1].TID != 1 {
		t.Fatalf("expected FIFO order [0,1], got %+v", got)
	}

	b.LowerCompletedFlagIfEmpty()
	if b.TaskCompletedFlag() {
		t.Fatalf("expected flag lowered once drained")
	}
}

func TestMetaStartAndDone(t *testing.T) {
	b := New()
	if b.MetaStarted() {
		t.Fatalf("expected meta not started on a fresh bridge")
	}
	b.PushReady([]ReadyTask{{EffectiveArrivalTime: 0, DAGID: 1, TID: 0}})
	if !b.MetaStarted() {
		t.Fatalf("expected meta started after first push")
	}
	if b.MetaDone() {
		t.Fatalf("expected meta not done yet")
	}
	b.SetMetaDone()
	if !b.MetaDone() {
		t.Fatalf("expected meta done after SetMetaDone")
	}
}
