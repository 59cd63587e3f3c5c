package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for digests. The version suffix allows the encoding to
// change without colliding with old digests.
const (
	DomainState = "rulekernel/state/v1"
	DomainRules = "rulekernel/rules/v1" // over the decoded source document
	DomainTrace = "rulekernel/trace/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null separator keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest canonicalizes v and hashes it under domain.
func Digest(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// StateDigest returns the digest of a game state. Two states with equal
// digests are interchangeable for replay.
func StateDigest(state *GameState) (string, error) {
	return Digest(DomainState, state)
}

// TraceDigest returns the digest of a trigger log.
func TraceDigest(log []TriggerLogEntry) (string, error) {
	if log == nil {
		log = []TriggerLogEntry{}
	}
	return Digest(DomainTrace, log)
}

// MustStateDigest is like StateDigest but panics on error.
// Use only in tests or when the state is known to be valid.
func MustStateDigest(state *GameState) string {
	d, err := StateDigest(state)
	if err != nil {
		panic(err)
	}
	return d
}
