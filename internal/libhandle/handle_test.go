package libhandle

import (
	"testing"

	"github.com/relohq/relo/internal/abi"
)

func TestBorrow_EmptyInput(t *testing.T) {
	ba := borrow(nil)
	if !ba.IsEmpty() {
		t.Fatalf("expected empty ByteArray, got %+v", ba)
	}
	if ba.Data != 0 {
		t.Fatalf("expected nil data pointer for empty input, got %#x", ba.Data)
	}
}

func TestBorrowAndCopyBorrowed_RoundTrip(t *testing.T) {
	data := []byte("hello state")
	ba := borrow(data)
	if ba.IsEmpty() {
		t.Fatal("expected non-empty ByteArray")
	}

	got := copyBorrowed(ba)
	if string(got) != string(data) {
		t.Fatalf("round trip mismatch: got %q want %q", got, data)
	}
}

func TestCopyBorrowed_EmptyArray(t *testing.T) {
	got := copyBorrowed(abi.ByteArray{})
	if got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
