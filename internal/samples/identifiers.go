package samples

import (
	"regexp"
	"strconv"
)

var engineSafeID = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// IdentifierMap maps surrogate sample identifiers back to declared ones.
// A nil map resolves every identifier to itself.
type IdentifierMap struct {
	surrogates []string
	originals  map[string]string
}

// Valid reports whether id can be embedded in engine read labels.
func Valid(id string) bool { return engineSafeID.MatchString(id) }

// Assign returns the identifiers to use in read labels, in input order. If
// every identifier is valid they are returned unchanged with a nil map.
func Assign(ids []string) ([]string, *IdentifierMap) {
	allValid := true
	for _, id := range ids {
		if !Valid(id) {
			allValid = false
			break
		}
	}
	active := make([]string, len(ids))
	if allValid {
		copy(active, ids)
		return active, nil
	}
	m := &IdentifierMap{
		surrogates: make([]string, len(ids)),
		originals:  make(map[string]string, len(ids)),
	}
	for i, id := range ids {
		surrogate := "S" + strconv.Itoa(i+1)
		active[i] = surrogate
		m.surrogates[i] = surrogate
		m.originals[surrogate] = id
	}
	return active, m
}

// Original returns the declared identifier for surrogate.
func (m *IdentifierMap) Original(surrogate string) (string, bool) {
	if m == nil {
		return surrogate, true
	}
	id, ok := m.originals[surrogate]
	return id, ok
}

// Len returns the number of surrogates.
func (m *IdentifierMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.surrogates)
}

// Pairs returns surrogate/declared pairs in manifest order.
func (m *IdentifierMap) Pairs() [][2]string {
	if m == nil {
		return nil
	}
	out := make([][2]string, len(m.surrogates))
	for i, s := range m.surrogates {
		out[i] = [2]string{s, m.originals[s]}
	}
	return out
}
