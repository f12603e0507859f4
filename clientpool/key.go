package clientpool

import (
	"fmt"
	"sort"
	"strings"
)

// Identity is the descriptor a Factory builds a client for. It is a
// struct rather than a map so Key can serialize its fields in a fixed
// order regardless of Go version or insertion order.
type Identity struct {
	ProjectID string
	Scopes    []string
}

// Key returns the canonical, field-order-stable cache key for id.
func (id Identity) Key() string {
	scopes := append([]string(nil), id.Scopes...)
	sort.Strings(scopes)
	return fmt.Sprintf("project=%s;scopes=%s", id.ProjectID, strings.Join(scopes, ","))
}
