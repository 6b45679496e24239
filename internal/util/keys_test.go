package util

import "testing"

func TestKeyJoinsSegments(t *testing.T) {
	if got := Key("follow", "a", "b"); got != "follow:a:b" {
		t.Fatalf("got %q", got)
	}
	if got := Key("banner", "u1"); got != "banner:u1" {
		t.Fatalf("got %q", got)
	}
}

func TestKeyEscapesSeparators(t *testing.T) {
	k1 := Key("follow", "a:b", "c")
	k2 := Key("follow", "a", "b:c")
	if k1 == k2 {
		t.Fatalf("keys collide: %q", k1)
	}
	if got := Key("block", "100%"); got != "block:100%25" {
		t.Fatalf("got %q", got)
	}
}

func TestKeyNamespacesDiffer(t *testing.T) {
	if Key("follow", "a", "b") == Key("block", "a", "b") {
		t.Fatalf("follow and block share a key")
	}
}

func TestJoinSingleAndEmpty(t *testing.T) {
	if got := Join(); got != "" {
		t.Fatalf("got %q", got)
	}
	if got := Join("a:b"); got != "a%3Ab" {
		t.Fatalf("got %q", got)
	}
	if got := Key("ns"); got != "ns" {
		t.Fatalf("got %q", got)
	}
}
