package main

import (
	"fmt"
	"testing"
)

func entriesFromIDs(ids ...string) []FeedEntry {
	entries := make([]FeedEntry, len(ids))
	for i, id := range ids {
		entries[i] = FeedEntry{GUID: id, Title: "entry " + id}
	}
	return entries
}

func TestDiffEntriesAllFresh(t *testing.T) {
	entries := entriesFromIDs("a", "b", "c")
	merged, fresh := diffEntries(nil, entries)
	if len(fresh) != 3 {
		t.Fatalf("expected 3 fresh entries, got %d", len(fresh))
	}
	// Fresh entries come back in document order, newest first.
	for i, e := range fresh {
		if e.GUID != entries[i].GUID {
			t.Errorf("fresh[%d] = %q, want %q", i, e.GUID, entries[i].GUID)
		}
	}
	if len(merged) != 3 {
		t.Errorf("merged ring has %d hashes, want 3", len(merged))
	}
	if merged[0] != hashEntry(&entries[0]) {
		t.Errorf("ring head is not the newest entry's hash")
	}
}

func TestDiffEntriesKnownSuppressed(t *testing.T) {
	old := entriesFromIDs("b", "c")
	stored, _ := diffEntries(nil, old)

	next := entriesFromIDs("a", "b", "c")
	merged, fresh := diffEntries(stored, next)
	if len(fresh) != 1 || fresh[0].GUID != "a" {
		t.Fatalf("expected only entry a to be fresh, got %v", fresh)
	}
	if len(merged) != 3 {
		t.Errorf("merged ring has %d hashes, want 3", len(merged))
	}
	if merged[0] != hashEntry(&next[0]) {
		t.Errorf("fresh hash should precede the stored ring")
	}
}

func TestDiffEntriesRepeatedIdentifier(t *testing.T) {
	entries := entriesFromIDs("a", "a", "b")
	_, fresh := diffEntries(nil, entries)
	if len(fresh) != 2 {
		t.Fatalf("duplicate identifier reported twice: %d fresh entries", len(fresh))
	}
}

func TestDiffEntriesFallsBackToLink(t *testing.T) {
	withGUID := []FeedEntry{{GUID: "id-1", Link: "https://example.com/1"}}
	linkOnly := []FeedEntry{{Link: "https://example.com/1"}}
	if hashEntry(&withGUID[0]) == hashEntry(&linkOnly[0]) {
		t.Fatal("GUID and link hashes should differ when both identify differently")
	}

	stored, _ := diffEntries(nil, linkOnly)
	_, fresh := diffEntries(stored, linkOnly)
	if len(fresh) != 0 {
		t.Errorf("link-identified entry reported fresh on second pass")
	}
}

func TestDiffEntriesRingBound(t *testing.T) {
	// A small feed keeps the floor-sized ring.
	small := entriesFromIDs("a", "b")
	stored := make([]uint32, 0, ringFloor+10)
	for i := 0; i < ringFloor+10; i++ {
		stored = append(stored, uint32(i))
	}
	merged, _ := diffEntries(stored, small)
	if len(merged) != ringFloor {
		t.Errorf("small feed ring bound = %d, want %d", len(merged), ringFloor)
	}

	// A large feed widens the bound to twice its entry count.
	ids := make([]string, 80)
	for i := range ids {
		ids[i] = fmt.Sprintf("big-%d", i)
	}
	merged, _ = diffEntries(stored, entriesFromIDs(ids...))
	if len(merged) != 160 {
		t.Errorf("large feed ring bound = %d, want 160", len(merged))
	}
}

func TestEntryHashCodec(t *testing.T) {
	hashes := []uint32{0, 1, 0xdeadbeef, 0xffffffff}
	encoded := encodeEntryHashes(hashes)
	decoded, err := decodeEntryHashes(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded) != len(hashes) {
		t.Fatalf("decoded %d hashes, want %d", len(decoded), len(hashes))
	}
	for i := range hashes {
		if decoded[i] != hashes[i] {
			t.Errorf("decoded[%d] = %08x, want %08x", i, decoded[i], hashes[i])
		}
	}
}

func TestDecodeEntryHashesTolerant(t *testing.T) {
	if got, err := decodeEntryHashes(""); err != nil || got != nil {
		t.Errorf("empty ring: got %v, %v", got, err)
	}
	if got, err := decodeEntryHashes("[]"); err != nil || len(got) != 0 {
		t.Errorf("empty array: got %v, %v", got, err)
	}
	if _, err := decodeEntryHashes("{not json"); err == nil {
		t.Error("expected an error for malformed JSON")
	}
	if _, err := decodeEntryHashes(`["zzzz"]`); err == nil {
		t.Error("expected an error for a non-hex element")
	}
}
