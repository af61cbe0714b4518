package abi

import "testing"

func TestRequiredSymbolsMatchesContract(t *testing.T) {
	want := []string{
		"entry_version",
		"entry_run",
		"entry_state_new",
		"entry_state_drop",
		"entry_state_serialize_new",
		"entry_state_serialize_drop",
		"entry_app_new",
		"entry_app_drop",
		"entry_app_version",
		"entry_app_compatible",
	}

	if len(RequiredSymbols) != len(want) {
		t.Fatalf("expected %d required symbols, got %d", len(want), len(RequiredSymbols))
	}
	for i, sym := range want {
		if RequiredSymbols[i] != sym {
			t.Errorf("symbol %d: expected %q, got %q", i, sym, RequiredSymbols[i])
		}
	}
}

func TestByteArrayIsEmpty(t *testing.T) {
	var empty ByteArray
	if !empty.IsEmpty() {
		t.Error("zero-value ByteArray should be empty")
	}

	nonEmpty := ByteArray{Data: 0x1000, Len: 4, Capacity: 4}
	if nonEmpty.IsEmpty() {
		t.Error("ByteArray with Len>0 should not be empty")
	}
}
