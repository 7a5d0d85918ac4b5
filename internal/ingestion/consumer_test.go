package ingestion_test

import (
	"context"
	"errors"
	"testing"

	"MemoLedger/internal/event"
	"MemoLedger/internal/ingestion"
	"MemoLedger/internal/memo"
	"MemoLedger/internal/reconcile"
)

type fakeDispatcher struct {
	calls []reconcile.Transfer
	memos []memo.Memo
	out   reconcile.Outcome
	err   error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, tr reconcile.Transfer, m memo.Memo) (reconcile.Outcome, error) {
	f.calls = append(f.calls, tr)
	f.memos = append(f.memos, m)
	out := f.out
	out.TxHash, out.LogIndex, out.Kind = tr.TxHash, tr.LogIndex, m.Kind
	return out, f.err
}

type fakeNotifier struct {
	events []event.Event
}

func (f *fakeNotifier) Enqueue(evt event.Event) bool {
	f.events = append(f.events, evt)
	return true
}

type ackCounter struct {
	acks, naks int
}

func (a *ackCounter) attach(raw ingestion.RawEvent) ingestion.RawEvent {
	raw.AckFunc = func() { a.acks++ }
	raw.NakFunc = func() { a.naks++ }
	return raw
}

func TestConsumerDispatchesAndAcks(t *testing.T) {
	d := &fakeDispatcher{out: reconcile.Outcome{Action: reconcile.ActionInvoicePaid, Target: "AB12cd34"}}
	n := &fakeNotifier{}
	c := ingestion.NewConsumer(d, ingestion.DefaultSubjects(), ingestion.WithNotifier(n))

	var ac ackCounter
	raw := ac.attach(rawFromJSON(t, transferPayload(memo.Encode(memo.KindInvoice, "AB12cd34"))))
	if err := c.Handle(context.Background(), raw); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(d.calls) != 1 {
		t.Fatalf("dispatch calls: got %d, want 1", len(d.calls))
	}
	if got := d.calls[0].Amount.String(); got != "25" {
		t.Errorf("amount: got %s, want 25", got)
	}
	if d.memos[0].Payload != "AB12cd34" {
		t.Errorf("payload: got %s, want AB12cd34", d.memos[0].Payload)
	}
	if ac.acks != 1 || ac.naks != 0 {
		t.Errorf("acks/naks: got %d/%d, want 1/0", ac.acks, ac.naks)
	}
	if len(n.events) != 1 {
		t.Fatalf("notified events: got %d, want 1", len(n.events))
	}
	if n.events[0].EventType() != event.EventTypeTransferReconciled {
		t.Errorf("event type: got %s", n.events[0].EventType())
	}
}

func TestConsumerSkippedOutcomeNotNotified(t *testing.T) {
	d := &fakeDispatcher{out: reconcile.Outcome{Action: reconcile.ActionSkipped, Reason: "already paid"}}
	n := &fakeNotifier{}
	c := ingestion.NewConsumer(d, ingestion.DefaultSubjects(), ingestion.WithNotifier(n))

	var ac ackCounter
	raw := ac.attach(rawFromJSON(t, transferPayload(memo.Encode(memo.KindInvoice, "AB12cd34"))))
	if err := c.Handle(context.Background(), raw); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if ac.acks != 1 {
		t.Errorf("acks: got %d, want 1", ac.acks)
	}
	if len(n.events) != 0 {
		t.Errorf("notified events: got %d, want 0", len(n.events))
	}
}

func TestConsumerNaksOnStoreFailure(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("db down")}
	c := ingestion.NewConsumer(d, ingestion.DefaultSubjects())

	var ac ackCounter
	raw := ac.attach(rawFromJSON(t, transferPayload(memo.Encode(memo.KindExpense, "lunch"))))
	if err := c.Handle(context.Background(), raw); err == nil {
		t.Fatal("expected error")
	}
	if ac.acks != 0 || ac.naks != 1 {
		t.Errorf("acks/naks: got %d/%d, want 0/1", ac.acks, ac.naks)
	}
}

func TestConsumerAcksWithoutDispatch(t *testing.T) {
	invalidUTF8 := [memo.Size]byte{0xff, 0xfe, 0xfd}

	tests := []struct {
		name string
		raw  func(t *testing.T) ingestion.RawEvent
	}{
		{"unknown subject", func(t *testing.T) ingestion.RawEvent {
			raw := rawFromJSON(t, transferPayload(memo.Encode(memo.KindExpense, "x")))
			raw.Subject = "other.subject"
			return raw
		}},
		{"unparseable", func(t *testing.T) ingestion.RawEvent {
			raw := rawFromJSON(t, transferPayload(memo.Encode(memo.KindExpense, "x")))
			raw.Data = []byte("{")
			return raw
		}},
		{"zero memo", func(t *testing.T) ingestion.RawEvent {
			return rawFromJSON(t, transferPayload([memo.Size]byte{}))
		}},
		{"malformed memo", func(t *testing.T) ingestion.RawEvent {
			return rawFromJSON(t, transferPayload(invalidUTF8))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{}
			c := ingestion.NewConsumer(d, ingestion.DefaultSubjects())

			var ac ackCounter
			if err := c.Handle(context.Background(), ac.attach(tt.raw(t))); err != nil {
				t.Fatalf("handle: %v", err)
			}
			if len(d.calls) != 0 {
				t.Errorf("dispatch calls: got %d, want 0", len(d.calls))
			}
			if ac.acks != 1 || ac.naks != 0 {
				t.Errorf("acks/naks: got %d/%d, want 1/0", ac.acks, ac.naks)
			}
		})
	}
}

func TestConsumerRunStopsWhenChannelCloses(t *testing.T) {
	d := &fakeDispatcher{out: reconcile.Outcome{Action: reconcile.ActionExpenseRecorded}}
	c := ingestion.NewConsumer(d, ingestion.DefaultSubjects())

	events := make(chan ingestion.RawEvent, 2)
	events <- rawFromJSON(t, transferPayload(memo.Encode(memo.KindExpense, "coffee")))
	events <- rawFromJSON(t, transferPayload(memo.Encode(memo.KindExpense, "taxi")))
	close(events)

	if err := c.Run(context.Background(), events); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(d.calls) != 2 {
		t.Errorf("dispatch calls: got %d, want 2", len(d.calls))
	}
}

func TestConsumerSeenCacheSkipsRedelivery(t *testing.T) {
	d := &fakeDispatcher{out: reconcile.Outcome{Action: reconcile.ActionExpenseRecorded}}
	n := &fakeNotifier{}
	c := ingestion.NewConsumer(d, ingestion.DefaultSubjects(),
		ingestion.WithNotifier(n),
		ingestion.WithSeenCache(16),
	)

	var ac ackCounter
	payload := transferPayload(memo.Encode(memo.KindExpense, "lunch"))
	for i := 0; i < 3; i++ {
		if err := c.Handle(context.Background(), ac.attach(rawFromJSON(t, payload))); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}

	if len(d.calls) != 1 {
		t.Errorf("dispatch calls: got %d, want 1", len(d.calls))
	}
	if ac.acks != 3 {
		t.Errorf("acks: got %d, want 3", ac.acks)
	}
	if len(n.events) != 1 {
		t.Errorf("notified events: got %d, want 1", len(n.events))
	}
}

func TestConsumerSeenCacheIgnoresSkipped(t *testing.T) {
	d := &fakeDispatcher{out: reconcile.Outcome{Action: reconcile.ActionSkipped, Reason: "market not found"}}
	c := ingestion.NewConsumer(d, ingestion.DefaultSubjects(), ingestion.WithSeenCache(16))

	payload := transferPayload(memo.Encode(memo.KindExpense, "lunch"))
	for i := 0; i < 2; i++ {
		if err := c.Handle(context.Background(), rawFromJSON(t, payload)); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}
	if len(d.calls) != 2 {
		t.Errorf("dispatch calls: got %d, want 2", len(d.calls))
	}
}
