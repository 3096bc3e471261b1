// Package shape implements response shaping: content fingerprints for
// conditional GETs, snapshot tokens for stable multi-page continuation, and
// the capped aggregation loop that hides upstream pagination.
package shape

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// ComputeETag returns a deterministic fingerprint of the payload's JSON
// content, as a quoted strong validator. encoding/json marshals map keys in
// sorted order, so key order in the source payload never affects the result.
func ComputeETag(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`, nil
}

// ETagMatches reports whether an If-None-Match header value matches the
// current ETag. Handles comma-separated lists, weak validator prefixes, and
// the wildcard.
func ETagMatches(ifNoneMatch, current string) bool {
	if ifNoneMatch == "" || current == "" {
		return false
	}
	if strings.TrimSpace(ifNoneMatch) == "*" {
		return true
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == current {
			return true
		}
	}
	return false
}
