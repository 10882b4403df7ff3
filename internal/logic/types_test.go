package logic

import "testing"

func TestPulseCountsRecord(t *testing.T) {
	c := NewPulseCounts()
	c.Record(Event{Type: EventPulseStart, Source: SourceButton})
	c.Record(Event{Type: EventPulseDropped, Source: SourceHTTP})
	c.Record(Event{Type: EventPulseDropped, Source: SourceHTTP})
	c.Record(Event{Type: EventPulseEnd, Source: SourceButton})
	c.Record(Event{Type: EventPulseFailed, Source: SourceSerial})

	if c.Accepted[SourceButton] != 1 {
		t.Errorf("Accepted[button]: got %d, want 1", c.Accepted[SourceButton])
	}
	if c.Dropped[SourceHTTP] != 2 {
		t.Errorf("Dropped[http]: got %d, want 2", c.Dropped[SourceHTTP])
	}
	if c.Finished != 1 {
		t.Errorf("Finished: got %d, want 1", c.Finished)
	}
	if c.Failed != 1 {
		t.Errorf("Failed: got %d, want 1", c.Failed)
	}
	if c.TotalAccepted() != 1 || c.TotalDropped() != 2 {
		t.Errorf("totals: got %d/%d, want 1/2", c.TotalAccepted(), c.TotalDropped())
	}
}

func TestPulseCountsCloneIsIndependent(t *testing.T) {
	c := NewPulseCounts()
	c.Record(Event{Type: EventPulseStart, Source: SourceSerial})

	cp := c.Clone()
	c.Record(Event{Type: EventPulseStart, Source: SourceSerial})

	if cp.Accepted[SourceSerial] != 1 {
		t.Errorf("clone changed with original: got %d, want 1", cp.Accepted[SourceSerial])
	}
}
