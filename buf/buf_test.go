package buf

import (
	"math"
	"testing"
)

func TestRoundTripIntegers(t *testing.T) {
	b := New(64)

	pos := b.WriteI8(0, -12)
	pos = b.WriteI16(pos, -4321)
	pos = b.WriteI32(pos, 123456789)
	pos = b.WriteI64(pos, -9876543210)
	if pos == 0 {
		t.Fatalf("writes failed unexpectedly")
	}

	v8, p := b.ReadI8(0)
	if v8 != -12 || p == 0 {
		t.Fatalf("i8 round trip: got %d", v8)
	}
	v16, p := b.ReadI16(p)
	if v16 != -4321 || p == 0 {
		t.Fatalf("i16 round trip: got %d", v16)
	}
	v32, p := b.ReadI32(p)
	if v32 != 123456789 || p == 0 {
		t.Fatalf("i32 round trip: got %d", v32)
	}
	v64, p := b.ReadI64(p)
	if v64 != -9876543210 || p == 0 {
		t.Fatalf("i64 round trip: got %d", v64)
	}
}

func TestRoundTripDouble(t *testing.T) {
	cases := []float64{0, -0.0, 1.5, -123456.789, math.MaxFloat64, math.SmallestNonzeroFloat64}
	for _, v := range cases {
		b := New(16)
		pos := b.WriteF64(0, v)
		if pos != 8 {
			t.Fatalf("WriteF64(%v) returned pos %d", v, pos)
		}
		got, newPos := b.ReadF64(0)
		if newPos != 8 {
			t.Fatalf("ReadF64(%v) returned pos %d", v, newPos)
		}
		if math.Float64bits(got) != math.Float64bits(v) {
			t.Fatalf("double round trip: want %v got %v", v, got)
		}
	}
}

func TestWriteStringThenReadStrncpy(t *testing.T) {
	b := New(64)
	pos := b.WriteString(0, "hello")
	if pos == 0 {
		t.Fatalf("WriteString failed")
	}

	dst := make([]byte, 16)
	n, newPos := b.ReadStrncpy(0, dst)
	if newPos == 0 {
		t.Fatalf("ReadStrncpy failed")
	}
	if n != 5 || string(dst[:n]) != "hello" {
		t.Fatalf("got %q (%d)", dst[:n], n)
	}
	if dst[n] != 0 {
		t.Fatalf("expected null terminator")
	}
}

func TestWriteEmptyStringIsTwoBytes(t *testing.T) {
	b := New(8)
	pos := b.WriteEmptyString(0)
	if pos != 2 {
		t.Fatalf("write_empty_string should advance by exactly 2, got %d", pos)
	}
}

func TestWriteOverflowLeavesBytesUntouched(t *testing.T) {
	b := New(4)
	before := append([]byte(nil), b.Bytes()...)

	pos := b.WriteI64(0, 123)
	if pos != 0 {
		t.Fatalf("expected overflow write to return 0, got %d", pos)
	}
	for i := range before {
		if b.Bytes()[i] != before[i] {
			t.Fatalf("bytes modified on failed write")
		}
	}
}

func TestReadNearCapacityBoundary(t *testing.T) {
	b := New(8)
	b.WriteI64(0, 42)

	// position capacity-n with n < needed must fail without moving.
	_, pos := b.ReadI32(7)
	if pos != 0 {
		t.Fatalf("expected short read to fail, got pos %d", pos)
	}
}

func TestSetI16BackpatchDoesNotAdvanceCursor(t *testing.T) {
	b := New(16)
	b.WriteI16(2, 0)
	ok := b.SetI16(2, 123)
	if !ok {
		t.Fatalf("SetI16 failed")
	}
	v, _ := b.PeekI16(2)
	if v != 123 {
		t.Fatalf("expected backpatched value 123, got %d", v)
	}
}

func TestResetZeroesBuffer(t *testing.T) {
	b := New(16)
	b.WriteI32(0, 7)
	b.Reset()
	for i, v := range b.Bytes() {
		if v != 0 {
			t.Fatalf("reset must zero the buffer, byte %d = %d", i, v)
		}
	}
}
