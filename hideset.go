// Hideset algebra for macro expansion (spec §4.4): the set of macro
// names already expanded to produce a token. An identifier already in
// its own hideset is not expanded again, which is what stops Prosser-
// style recursive expansion cycles.
package main

import "golang.org/x/exp/slices"

// Hideset is an unordered set of macro names, kept as a sorted slice
// so union/intersection/contains are simple and allocation-light for
// the common small-set case (most tokens carry zero or one name).
type Hideset []string

// Contains reports whether name is a member of hs.
func (hs Hideset) Contains(name string) bool {
	_, found := slices.BinarySearch(hs, name)
	return found
}

// add inserts name into hs, keeping it sorted and deduplicated.
func (hs Hideset) add(name string) Hideset {
	i, found := slices.BinarySearch(hs, name)
	if found {
		return hs
	}
	out := make(Hideset, 0, len(hs)+1)
	out = append(out, hs[:i]...)
	out = append(out, name)
	out = append(out, hs[i:]...)
	return out
}

// hidesetUnion returns the set union of a and b.
func hidesetUnion(a, b Hideset) Hideset {
	out := slices.Clone(a)
	for _, name := range b {
		out = out.add(name)
	}
	return out
}

// hidesetIntersection returns the set intersection of a and b, the
// core of Prosser's algorithm: the hideset attached to the tokens
// produced by a function-like macro expansion is
// intersection(macro_name.hideset, closing_paren.hideset) ∪ {macro_name}.
func hidesetIntersection(a, b Hideset) Hideset {
	var out Hideset
	for _, name := range a {
		if b.Contains(name) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// addHideset stamps hs onto every token in the chain tok..nil,
// unioning with whatever hideset each token already carries.
func addHideset(tok *Token, hs Hideset) *Token {
	head := &Token{}
	cur := head
	for t := tok; t != nil; t = t.Next {
		n := new(Token)
		*n = *t
		n.Hideset = hidesetUnion(n.Hideset, hs)
		cur.Next = n
		cur = n
	}
	return head.Next
}
