package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math/rand"
	"testing"
)

func mustEncode(t *testing.T, msg *Message) []byte {
	t.Helper()
	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return data
}

func TestRoundTrip(t *testing.T) {
	msg := NewDataMessage(7, json.RawMessage(`{"x":1}`))
	msg.Head.Sequence = 42

	data := mustEncode(t, msg)

	d := NewDecoder()
	if err := d.Feed(data); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	got, ok := d.Front()
	if !ok {
		t.Fatal("expected a decoded message")
	}
	if got.Head.Server != 7 || got.Head.Sequence != 42 || got.Head.Type != TypeData {
		t.Fatalf("head mismatch: %+v", got.Head)
	}
	if int(got.Head.Len) != len(data) {
		t.Fatalf("len mismatch: head says %d, encoded %d bytes", got.Head.Len, len(data))
	}
	if !bytes.Equal(got.Body, []byte(`{"x":1}`)) {
		t.Fatalf("body mismatch: %s", got.Body)
	}
}

func TestFramingAcrossArbitrarySplits(t *testing.T) {
	m1 := NewDataMessage(1, json.RawMessage(`{"a":1}`))
	m2 := NewDataMessage(2, json.RawMessage(`{"b":2}`))
	m3 := NewDataMessage(3, json.RawMessage(`{"c":3}`))
	m1.Head.Sequence, m2.Head.Sequence, m3.Head.Sequence = 1, 2, 3

	var all []byte
	for _, m := range []*Message{m1, m2, m3} {
		all = append(all, mustEncode(t, m)...)
	}

	rng := rand.New(rand.NewSource(1))
	d := NewDecoder()
	for len(all) > 0 {
		n := 1 + rng.Intn(len(all))
		if err := d.Feed(all[:n]); err != nil {
			t.Fatalf("Feed failed: %v", err)
		}
		all = all[n:]
	}

	var got []uint16
	for !d.Empty() {
		msg, _ := d.Front()
		got = append(got, msg.Head.Server)
		d.Pop()
	}

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("expected servers [1 2 3], got %v", got)
	}
}

func TestCrcRejection(t *testing.T) {
	msg := NewDataMessage(1, json.RawMessage(`{"a":1}`))
	data := mustEncode(t, msg)

	for i := range data {
		if i == 7 || i == 8 {
			continue // crc field itself
		}
		corrupt := append([]byte(nil), data...)
		corrupt[i] ^= 0xFF

		d := NewDecoder()
		err := d.Feed(corrupt)
		if declared := binary.LittleEndian.Uint32(corrupt[3:7]); err == nil && int(declared) > len(corrupt) {
			// A flipped len byte can still declare a valid, longer frame; the
			// decoder then waits for the rest, so supply it to reach the crc check.
			err = d.Feed(make([]byte, int(declared)-len(corrupt)))
		}
		if err == nil {
			t.Fatalf("expected decode error after flipping byte %d", i)
		}
	}
}

func TestLengthRejection(t *testing.T) {
	cases := []uint32{0, 1, 13, MaxFrameLen + 1}
	for _, badLen := range cases {
		head := make([]byte, HeadSize)
		head[0] = CurrentVersion
		writeHead(head, &Head{Version: CurrentVersion}, badLen)

		d := NewDecoder()
		if err := d.Feed(head); err == nil {
			t.Fatalf("expected error for len=%d", badLen)
		}
	}
}

func TestPartialReads(t *testing.T) {
	m1 := NewDataMessage(1, json.RawMessage(`{"a":1}`))
	m2 := NewDataMessage(2, json.RawMessage(`{"bbbbbbbbbbbbbbbbbbbbbbbbb":2}`))
	data1 := mustEncode(t, m1)
	data2 := mustEncode(t, m2)
	all := append(append([]byte(nil), data1...), data2...)

	d := NewDecoder()
	if err := d.Feed(all[:20]); err != nil {
		t.Fatalf("Feed 1 failed: %v", err)
	}
	if !d.Empty() {
		t.Fatal("expected no messages yet")
	}
	if err := d.Feed(all[20:60]); err != nil {
		t.Fatalf("Feed 2 failed: %v", err)
	}
	if err := d.Feed(all[60:]); err != nil {
		t.Fatalf("Feed 3 failed: %v", err)
	}

	var count int
	for !d.Empty() {
		count++
		d.Pop()
	}
	if count != 2 {
		t.Fatalf("expected 2 messages, got %d", count)
	}
}
