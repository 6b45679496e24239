package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func mustDecode(t *testing.T, b []byte) Entry {
	t.Helper()
	e, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return e
}

func TestEntryRTEmptyAndNonEmpty(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 123, time.UTC)
	cases := []Entry{
		{Gen: 0, FetchedAt: at, Payload: nil},
		{Gen: 42, FetchedAt: at, Payload: []byte("true")},
		{Gen: math.MaxUint64, FetchedAt: at.Add(time.Hour), Payload: []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		got := mustDecode(t, Encode(tc))
		if got.Gen != tc.Gen {
			t.Fatalf("gen mismatch: got %d want %d", got.Gen, tc.Gen)
		}
		if !got.FetchedAt.Equal(tc.FetchedAt) {
			t.Fatalf("fetchedAt mismatch: got %v want %v", got.FetchedAt, tc.FetchedAt)
		}
		if !bytes.Equal(got.Payload, tc.Payload) {
			t.Fatalf("payload mismatch: got %x want %x", got.Payload, tc.Payload)
		}
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	enc := Encode(Entry{Gen: 7, FetchedAt: time.Now(), Payload: []byte("x")})
	enc = append(enc, 0xDE, 0xAD) // add junk
	if _, err := Decode(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestDecodeCorruptHeadersAndLengths(t *testing.T) {
	enc := Encode(Entry{Gen: 1, FetchedAt: time.Now(), Payload: []byte("abc")})

	// bad magic
	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := Decode(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	// wrong version
	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := Decode(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// vlen larger than remaining bytes
	badLen := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(badLen[hdrLen-4:hdrLen], 1<<20)
	if _, err := Decode(badLen); err == nil {
		t.Fatalf("expected error on oversized vlen")
	}

	// truncated header
	if _, err := Decode(enc[:hdrLen-1]); err == nil {
		t.Fatalf("expected error on short header")
	}
}

func TestDecodeForeignValue(t *testing.T) {
	if _, err := Decode([]byte("not-wire-format-but-long-enough-to-pass-len")); err != ErrCorrupt {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}
