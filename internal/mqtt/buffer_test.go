package mqtt

import (
	"testing"
)

func pushN(rb *ringBuffer, from, to int) (evictions int) {
	for i := from; i < to; i++ {
		if rb.push(bufferedMsg{topic: Topic, payload: []byte{byte(i)}}) {
			evictions++
		}
	}
	return evictions
}

func payloadBytes(msgs []bufferedMsg) []byte {
	out := make([]byte, len(msgs))
	for i, m := range msgs {
		out[i] = m.payload[0]
	}
	return out
}

func TestRingBufferEmptyDrain(t *testing.T) {
	if got := newRingBuffer(4).drainAll(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestRingBuffer(t *testing.T) {
	tests := []struct {
		name          string
		capacity      int
		pushed        int
		wantPayloads  []byte
		wantEvictions int
	}{
		{"partial", 10, 5, []byte{0, 1, 2, 3, 4}, 0},
		{"exactly full", 4, 4, []byte{0, 1, 2, 3}, 0},
		{"overflow keeps newest", 5, 8, []byte{3, 4, 5, 6, 7}, 3},
		{"capacity one", 1, 3, []byte{2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := newRingBuffer(tt.capacity)
			if got := pushN(rb, 0, tt.pushed); got != tt.wantEvictions {
				t.Errorf("evictions: got %d, want %d", got, tt.wantEvictions)
			}
			if rb.len() != len(tt.wantPayloads) {
				t.Errorf("len: got %d, want %d", rb.len(), len(tt.wantPayloads))
			}
			got := payloadBytes(rb.drainAll())
			if string(got) != string(tt.wantPayloads) {
				t.Errorf("payloads: got %v, want %v", got, tt.wantPayloads)
			}
			if rb.len() != 0 {
				t.Errorf("len after drain: got %d", rb.len())
			}
		})
	}
}

func TestRingBufferReusableAfterDrain(t *testing.T) {
	rb := newRingBuffer(3)
	pushN(rb, 0, 5)
	rb.drainAll()

	pushN(rb, 10, 12)
	got := payloadBytes(rb.drainAll())
	if string(got) != string([]byte{10, 11}) {
		t.Errorf("second cycle: got %v, want [10 11]", got)
	}
}

func TestRingBufferPreservesFields(t *testing.T) {
	rb := newRingBuffer(2)
	rb.push(bufferedMsg{topic: TopicSystem, payload: []byte("x"), qos: 1, retained: true})

	got := rb.drainAll()
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	m := got[0]
	if m.topic != TopicSystem || string(m.payload) != "x" || m.qos != 1 || !m.retained {
		t.Errorf("fields not preserved: %+v", m)
	}
}

func TestRingBufferZeroCapacityClamped(t *testing.T) {
	rb := newRingBuffer(0)
	rb.push(bufferedMsg{payload: []byte{1}})
	if rb.len() != 1 {
		t.Errorf("len: got %d, want 1", rb.len())
	}
}
