package models

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestMessageCursorRoundTrip(t *testing.T) {
	now := time.Now()
	c := MessageCursor{CreatedAt: now, ID: 423456789012345}

	decoded, err := DecodeMessageCursor(c.Encode())
	if err != nil {
		t.Fatalf("DecodeMessageCursor failed: %v", err)
	}
	if decoded.ID != c.ID {
		t.Fatalf("expected id %d, got %d", c.ID, decoded.ID)
	}
	if !decoded.CreatedAt.Equal(now.Truncate(0)) && decoded.CreatedAt.UnixNano() != now.UnixNano() {
		t.Fatalf("expected timestamp %v, got %v", now, decoded.CreatedAt)
	}
}

func TestDecodeMessageCursorRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"not-base64!!",
		"bm9jb2xvbg",       // decodes but has no separator
		"YWJjOmRlZg",       // "abc:def", non-numeric
		"MTIzNDU2Nzg5MDo=", // trailing junk after separator
	}
	for _, token := range cases {
		if _, err := DecodeMessageCursor(token); err == nil {
			t.Errorf("expected error for cursor %q", token)
		}
	}
}

func TestMessagePreview(t *testing.T) {
	if got := (&Message{ImageURL: "https://x/img.png"}).Preview(); got != "[image]" {
		t.Fatalf("expected image placeholder, got %q", got)
	}
	long := strings.Repeat("a", 200)
	if got := (&Message{Content: long}).Preview(); len(got) != 80 {
		t.Fatalf("expected 80-char preview, got %d chars", len(got))
	}
	if got := (&Message{Content: "hi"}).Preview(); got != "hi" {
		t.Fatalf("expected %q, got %q", "hi", got)
	}
}

func TestMessagePreviewKeepsRunesIntact(t *testing.T) {
	long := strings.Repeat("é", 200)
	got := (&Message{Content: long}).Preview()
	if !utf8.ValidString(got) {
		t.Fatalf("preview split a multi-byte character: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 80 {
		t.Fatalf("expected 80 runes, got %d", n)
	}

	// Content just under the limit passes through untouched.
	short := strings.Repeat("世", 80)
	if got := (&Message{Content: short}).Preview(); got != short {
		t.Fatalf("80-rune content should not be truncated, got %q", got)
	}
}

func TestDirectPairKeyIsCanonical(t *testing.T) {
	if DirectPairKey(7, 3) != DirectPairKey(3, 7) {
		t.Fatal("pair key must not depend on argument order")
	}
	if DirectPairKey(3, 7) != "3:7" {
		t.Fatalf("unexpected key %q", DirectPairKey(3, 7))
	}
}
