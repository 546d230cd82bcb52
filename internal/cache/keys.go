package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Key builds a deterministic cache key for an operation and its parameters.
// Parameters are serialized in sorted-by-name order before hashing so the
// same parameter set always produces the same key regardless of map
// iteration or caller insertion order. Names and values are query-escaped
// so delimiter bytes inside a value cannot make two distinct parameter
// sets serialize identically.
func Key(operation string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(operation)
	for _, name := range names {
		b.WriteByte('&')
		b.WriteString(url.QueryEscape(name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[name]))
	}

	return fmt.Sprintf("%s:%016x", operation, xxhash.Sum64String(b.String()))
}
