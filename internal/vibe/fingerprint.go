package vibe

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint hashes a set of resolved book identity keys into a stable cache
// key. The keys are sorted and deduplicated first, so two imports of the same
// books in any order share one fingerprint.
func Fingerprint(identityKeys []string) string {
	unique := make(map[string]struct{}, len(identityKeys))
	for _, key := range identityKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		unique[key] = struct{}{}
	}

	sorted := make([]string, 0, len(unique))
	for key := range unique {
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	h := sha256.New()
	for _, key := range sorted {
		h.Write([]byte(key))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
