package audio

import (
	"bytes"
	"testing"
)

func TestRingBuffer_WriteRead(t *testing.T) {
	rb := NewRingBuffer(16)

	data := []byte{1, 2, 3, 4, 5}
	written := rb.Write(data)
	if written != len(data) {
		t.Errorf("Expected %d bytes written, got %d", len(data), written)
	}

	out := make([]byte, len(data))
	read := rb.Read(out)
	if read != len(data) {
		t.Errorf("Expected %d bytes read, got %d", len(data), read)
	}
	if !bytes.Equal(out, data) {
		t.Errorf("Expected %v, got %v", data, out)
	}
}

func TestRingBuffer_Full(t *testing.T) {
	rb := NewRingBuffer(8)

	// Capacity is size-1 to disambiguate full from empty
	written := rb.Write(make([]byte, 10))
	if written != 7 {
		t.Errorf("Expected 7 bytes written into full buffer, got %d", written)
	}
}

func TestRingBuffer_EmptyRead(t *testing.T) {
	rb := NewRingBuffer(8)

	out := make([]byte, 4)
	if read := rb.Read(out); read != 0 {
		t.Errorf("Expected 0 bytes read from empty buffer, got %d", read)
	}
}

func TestRingBuffer_Wraparound(t *testing.T) {
	rb := NewRingBuffer(8)

	for cycle := 0; cycle < 5; cycle++ {
		data := []byte{byte(cycle), byte(cycle + 1), byte(cycle + 2)}
		if written := rb.Write(data); written != 3 {
			t.Fatalf("Cycle %d: expected 3 bytes written, got %d", cycle, written)
		}
		out := make([]byte, 3)
		if read := rb.Read(out); read != 3 {
			t.Fatalf("Cycle %d: expected 3 bytes read, got %d", cycle, read)
		}
		if !bytes.Equal(out, data) {
			t.Errorf("Cycle %d: expected %v, got %v", cycle, data, out)
		}
	}
}

func TestRingBuffer_AvailableAndSpace(t *testing.T) {
	rb := NewRingBuffer(16)

	if rb.Available() != 0 {
		t.Errorf("Expected 0 available, got %d", rb.Available())
	}
	if rb.Space() != 15 {
		t.Errorf("Expected 15 space, got %d", rb.Space())
	}

	rb.Write([]byte{1, 2, 3, 4})
	if rb.Available() != 4 {
		t.Errorf("Expected 4 available, got %d", rb.Available())
	}
	if rb.Space() != 11 {
		t.Errorf("Expected 11 space, got %d", rb.Space())
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer(16)
	rb.Write([]byte{1, 2, 3})

	rb.Clear()
	if !rb.IsEmpty() {
		t.Error("Expected buffer to be empty after Clear")
	}
	if rb.Available() != 0 {
		t.Errorf("Expected 0 available after Clear, got %d", rb.Available())
	}
}
