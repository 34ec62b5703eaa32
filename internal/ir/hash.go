package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainQuerySpec = "provgraph/queryspec/v1"
	DomainScenario  = "provgraph/scenario/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SpecHash computes the content hash of a frozen query specification.
// Two specifications with identical content produce the same hash regardless
// of map iteration order or how numbers were spelled.
func SpecHash(spec any) (string, error) {
	canonical, err := MarshalCanonical(spec)
	if err != nil {
		return "", fmt.Errorf("SpecHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainQuerySpec, canonical), nil
}

// ScenarioHash computes the content hash used to key harness fixtures.
func ScenarioHash(v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("ScenarioHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainScenario, canonical), nil
}

// MustSpecHash is like SpecHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSpecHash(spec any) string {
	h, err := SpecHash(spec)
	if err != nil {
		panic(err)
	}
	return h
}
