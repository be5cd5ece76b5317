package helpers

import (
	"encoding/json"
	"strings"
)

// HXHeaders encodes headers for an hx-headers attribute.
func HXHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	raw, err := json.Marshal(headers)
	if err != nil {
		return ""
	}
	return string(raw)
}

// JoinPath joins URL path segments with single slashes.
func JoinPath(base string, elems ...string) string {
	out := strings.TrimRight(base, "/")
	for _, elem := range elems {
		elem = strings.Trim(elem, "/")
		if elem == "" {
			continue
		}
		out += "/" + elem
	}
	if out == "" {
		return "/"
	}
	return out
}
