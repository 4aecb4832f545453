package event

import "fmt"

// Group is a 32-bit bitmask used to tag events for bulk querying.
// Bit 0 is reserved for GroupNone; bits 1 through 30 are the named groups.
// Groups compare by mask value, not identity, and combine with Union.
type Group uint32

const (
	GroupNone Group = 1 << iota
	Group1
	Group2
	Group3
	Group4
	Group5
	Group6
	Group7
	Group8
	Group9
	Group10
	Group11
	Group12
	Group13
	Group14
	Group15
	Group16
	Group17
	Group18
	Group19
	Group20
	Group21
	Group22
	Group23
	Group24
	Group25
	Group26
	Group27
	Group28
	Group29
	Group30
)

// Union combines two groups into one containing both.
func (g Group) Union(other Group) Group {
	return g | other
}

// Has reports whether g and other share at least one group bit.
func (g Group) Has(other Group) bool {
	return g&other != 0
}

// Invert returns the complement mask.
func (g Group) Invert() Group {
	return ^g
}

func (g Group) String() string {
	return fmt.Sprintf("Group(%#08x)", uint32(g))
}
