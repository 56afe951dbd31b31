package internal

import (
	"fmt"
	"sort"
	"strings"

	"gitee.com/golang-module/dongle"
)

// Direction selects which field names are excluded from the canonical
// string. The gateway signs its callbacks over a slightly different field
// set than the one it expects on redirect requests.
type Direction int

const (
	// Outbound signs a redirect payload before it is posted to the gateway.
	Outbound Direction = iota
	// Inbound verifies a callback payload received from the gateway.
	Inbound
)

// Exclusion membership is an exact string match, not case-insensitive.
// The two sets are intentionally asymmetric: api_url only appears on
// redirect requests, lapTransactionState only on callbacks.
var (
	outboundExcluded = map[string]struct{}{"encoding": {}, "HASH": {}, "api_url": {}}
	inboundExcluded  = map[string]struct{}{"encoding": {}, "HASH": {}, "lapTransactionState": {}}
)

// escaper doubles backslashes and escapes pipes in a single pass over the
// input, so the backslash introduced by a pipe escape is never re-escaped.
var escaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`)

// Signer computes the CMI signature over a key/value field set.
// The store key is passed in explicitly so the engine stays testable and
// reusable for both directions.
type Signer struct {
	storeKey string
}

func NewSigner(storeKey string) *Signer {
	return &Signer{storeKey: storeKey}
}

// Sign builds the canonical string for the given direction and returns the
// base64-encoded SHA-512 digest. Field names are sorted case-insensitively;
// every value is escaped, stripped of newlines and followed by a pipe
// separator; the escaped and trimmed store key terminates the string.
func (s *Signer) Sign(direction Direction, fields map[string]string) (string, error) {
	if s.storeKey == "" {
		return "", fmt.Errorf("merchant store key not configured")
	}

	var excluded map[string]struct{}
	switch direction {
	case Outbound:
		excluded = outboundExcluded
	case Inbound:
		excluded = inboundExcluded
	default:
		return "", fmt.Errorf("unknown signature direction %d", direction)
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		if _, skip := excluded[key]; skip {
			continue
		}
		keys = append(keys, key)
	}
	// Map iteration order is random, so fix a deterministic base order
	// before the stable case-insensitive sort.
	sort.Strings(keys)
	sort.SliceStable(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})

	var plain strings.Builder
	for _, key := range keys {
		plain.WriteString(escapeValue(fields[key]))
		plain.WriteString("|")
	}
	plain.WriteString(strings.TrimSpace(escaper.Replace(s.storeKey)))

	return dongle.Encrypt.FromString(plain.String()).BySha512().ToBase64String(), nil
}

func escapeValue(value string) string {
	return strings.ReplaceAll(escaper.Replace(value), "\n", "")
}
