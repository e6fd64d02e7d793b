package domain

import "strings"

// KeyPrefix namespaces every key the pipeline writes to the store.
const KeyPrefix = "lead:"

// NormalizeDomain lowercases a domain and strips a leading www so cache
// keys and deny-list comparisons agree on one spelling.
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	return strings.TrimPrefix(d, "www.")
}
