package util

import "testing"

func TestParseIntDefault(t *testing.T) {
	if got := ParseIntDefault("", 7); got != 7 {
		t.Fatalf("expected default, got %d", got)
	}
	if got := ParseIntDefault("x1", 7); got != 7 {
		t.Fatalf("expected default on bad input, got %d", got)
	}
	if got := ParseIntDefault("6380", 7); got != 6380 {
		t.Fatalf("expected 6380, got %d", got)
	}
}

func TestParseInts(t *testing.T) {
	got, err := ParseInts("1, 6,,48")
	if err != nil || len(got) != 3 || got[2] != 48 {
		t.Fatalf("unexpected %v %v", got, err)
	}
	if _, err := ParseInts("1,x"); err == nil {
		t.Fatalf("expected error")
	}
}
