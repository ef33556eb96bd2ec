package ir

import (
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Domain prefixes for value keys.
// Version suffix enables future algorithm migration.
const (
	DomainGroup = "dstoolkit/group/v1"
	DomainValue = "dstoolkit/value/v1"
)

// hashWithDomain computes an xxhash digest with domain separation.
// Format: XXH64(domain + 0x00 + data)
//
// Keys are only used as in-memory map keys, never persisted, so a fast
// non-cryptographic hash is enough.
func hashWithDomain(domain string, data []byte) string {
	h := xxhash.New()
	_, _ = h.WriteString(domain)
	_, _ = h.Write([]byte{0x00})
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// GroupKey computes the bucket key of an aggregation group tuple.
// Two tuples get the same key iff their canonical JSON is identical.
func GroupKey(group map[string]any) (string, error) {
	canonical, err := MarshalCanonical(group)
	if err != nil {
		return "", fmt.Errorf("GroupKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainGroup, canonical), nil
}

// ValueKey computes a deduplication key for an arbitrary record value.
func ValueKey(v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("ValueKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainValue, canonical), nil
}

// MustValueKey is like ValueKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustValueKey(v any) string {
	key, err := ValueKey(v)
	if err != nil {
		panic(err)
	}
	return key
}
