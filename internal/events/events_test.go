package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/coin-pulser/internal/logger"
	"github.com/sweeney/coin-pulser/internal/logic"
	"github.com/sweeney/coin-pulser/internal/repository"
)

type recordingSink struct {
	name string
	err  error

	mu   sync.Mutex
	recs []Record
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Handle(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, r)
	return s.err
}

func (s *recordingSink) records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.recs...)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestEmitNeverBlocksWhenFull(t *testing.T) {
	d := NewDispatcher(2, logger.Nop())
	var drops int
	d.OnDrop = func() { drops++ }

	ev := logic.Event{Type: logic.EventPulseStart, Source: logic.SourceButton}
	if !d.Emit(ev) || !d.Emit(ev) {
		t.Fatal("first two emits should queue")
	}
	if d.Emit(ev) {
		t.Fatal("third emit should be discarded")
	}
	if d.Dropped() != 1 || drops != 1 {
		t.Errorf("dropped: got %d (hook %d), want 1", d.Dropped(), drops)
	}
}

func TestRunDeliversToAllSinksInOrder(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b", err: errors.New("broker down")}
	d := NewDispatcher(8, logger.Nop(), a, b)
	d.newID = sequentialIDs()

	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	d.Emit(logic.Event{Timestamp: t0, Type: logic.EventPulseStart, Source: logic.SourceHTTP})
	d.Emit(logic.Event{Timestamp: t0.Add(50 * time.Millisecond), Type: logic.EventPulseEnd, Source: logic.SourceHTTP, Duration: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(a.records()) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	got := a.records()
	if len(got) != 2 {
		t.Fatalf("sink a: got %d records, want 2", len(got))
	}
	if got[0].ID != "id-1" || got[0].Type != logic.EventPulseStart {
		t.Errorf("first: got %+v", got[0])
	}
	if got[1].ID != "id-2" || got[1].Duration != 50*time.Millisecond {
		t.Errorf("second: got %+v", got[1])
	}
	// A failing sink still sees every record.
	if len(b.records()) != 2 {
		t.Errorf("sink b: got %d records, want 2", len(b.records()))
	}
}

func TestRunFlushesQueuedOnCancel(t *testing.T) {
	s := &recordingSink{name: "s"}
	d := NewDispatcher(8, logger.Nop(), s)

	for i := 0; i < 3; i++ {
		d.Emit(logic.Event{Type: logic.EventPulseDropped, Source: logic.SourceSerial})
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	if n := len(s.records()); n != 3 {
		t.Fatalf("flushed: got %d, want 3", n)
	}
}

// ctxSink fails like a database sink when handed a cancelled context.
type ctxSink struct {
	mu        sync.Mutex
	delivered int
	cancelled int
}

func (s *ctxSink) Name() string { return "ctx" }

func (s *ctxSink) Handle(ctx context.Context, _ Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		s.cancelled++
		return err
	}
	s.delivered++
	return nil
}

func TestRunAfterCancelDeliversWithLiveContext(t *testing.T) {
	// Both select branches are ready on every iteration, so a full queue
	// exercises the queue branch after cancellation many times over.
	for round := 0; round < 20; round++ {
		s := &ctxSink{}
		d := NewDispatcher(DefaultQueueSize, logger.Nop(), s)
		for i := 0; i < DefaultQueueSize; i++ {
			if !d.Emit(logic.Event{Type: logic.EventPulseStart, Source: logic.SourceHTTP}) {
				t.Fatalf("emit %d discarded", i)
			}
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		d.Run(ctx)

		if s.cancelled != 0 || s.delivered != DefaultQueueSize {
			t.Fatalf("round %d: delivered %d, with cancelled context %d", round, s.delivered, s.cancelled)
		}
	}
}

func TestDefaultIDsAreUnique(t *testing.T) {
	s := &recordingSink{name: "s"}
	d := NewDispatcher(8, logger.Nop(), s)
	d.Emit(logic.Event{Type: logic.EventPulseStart})
	d.Emit(logic.Event{Type: logic.EventPulseEnd})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	recs := s.records()
	if len(recs) != 2 || recs[0].ID == "" || recs[0].ID == recs[1].ID {
		t.Fatalf("ids: got %+v", recs)
	}
}

type fakeRepo struct {
	got []repository.PulseRecord
}

func (f *fakeRepo) Append(_ context.Context, r repository.PulseRecord) error {
	f.got = append(f.got, r)
	return nil
}

func (f *fakeRepo) List(context.Context, int) ([]repository.PulseRecord, error) {
	return f.got, nil
}

func TestHistorySinkConvertsRecord(t *testing.T) {
	repo := &fakeRepo{}
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	err := HistorySink{Repo: repo}.Handle(context.Background(), Record{
		ID: "abc",
		Event: logic.Event{
			Timestamp: t0,
			Type:      logic.EventPulseEnd,
			Source:    logic.SourceButton,
			Duration:  52 * time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	want := repository.PulseRecord{ID: "abc", OccurredAt: t0, Type: "PULSE_END", Source: "button press", DurationMS: 52}
	if len(repo.got) != 1 || repo.got[0] != want {
		t.Errorf("got %+v, want %+v", repo.got, want)
	}
}
