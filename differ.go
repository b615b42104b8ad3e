package main

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
)

// ringFloor is the minimum capacity of a feed's entry-hash ring.
const ringFloor = 100

func hashEntry(e *FeedEntry) uint32 {
	id := e.GUID
	if id == "" {
		id = e.Link
	}
	return crc32.ChecksumIEEE([]byte(id))
}

// diffEntries walks parsed entries (newest-first, as feeds list them) and
// returns the merged hash ring plus the entries whose hashes were not in the
// stored ring. The merged ring is newest-first and bounded at
// max(2*len(entries), ringFloor).
func diffEntries(stored []uint32, entries []FeedEntry) (merged []uint32, fresh []*FeedEntry) {
	known := make(map[uint32]struct{}, len(stored))
	for _, h := range stored {
		known[h] = struct{}{}
	}

	var freshHashes []uint32
	for i := range entries {
		h := hashEntry(&entries[i])
		if _, ok := known[h]; ok {
			continue
		}
		known[h] = struct{}{} // feeds occasionally repeat identifiers within one document
		freshHashes = append(freshHashes, h)
		fresh = append(fresh, &entries[i])
	}

	bound := 2 * len(entries)
	if bound < ringFloor {
		bound = ringFloor
	}
	merged = make([]uint32, 0, len(freshHashes)+len(stored))
	merged = append(merged, freshHashes...)
	merged = append(merged, stored...)
	if len(merged) > bound {
		merged = merged[:bound]
	}
	return merged, fresh
}

// The ring is persisted as a JSON array of lowercase 8-digit hex strings,
// newest-first.

func encodeEntryHashes(hashes []uint32) string {
	ss := make([]string, len(hashes))
	for i, h := range hashes {
		ss[i] = fmt.Sprintf("%08x", h)
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func decodeEntryHashes(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	var ss []string
	if err := json.Unmarshal([]byte(s), &ss); err != nil {
		return nil, fmt.Errorf("entry hash ring: %w", err)
	}
	hashes := make([]uint32, len(ss))
	for i, h := range ss {
		var v uint32
		if _, err := fmt.Sscanf(h, "%08x", &v); err != nil {
			return nil, fmt.Errorf("entry hash ring: bad element %q", h)
		}
		hashes[i] = v
	}
	return hashes, nil
}
