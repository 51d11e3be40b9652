package graph

import "strings"

// Equal implements Cypher value equality: graph records compare by id
// (strict — no numeric/string coercion, spec.md §9); lists compare
// element-wise; everything else falls back to the canonical serialization,
// which already sorts map keys so structurally-equal maps compare equal.
func Equal(a, b any) bool {
	an, aIsNode := a.(*NodeRecord)
	bn, bIsNode := b.(*NodeRecord)
	if aIsNode || bIsNode {
		if !aIsNode || !bIsNode {
			return false
		}
		return an.ID == bn.ID
	}
	ar, aIsRel := a.(*RelRecord)
	br, bIsRel := b.(*RelRecord)
	if aIsRel || bIsRel {
		if !aIsRel || !bIsRel {
			return false
		}
		return ar.ID == br.ID
	}
	if af, aok := AsFloat64(a); aok {
		if bf, bok := AsFloat64(b); bok {
			return af == bf
		}
		return false
	}
	return Serialize(a) == Serialize(b)
}

// Compare returns -1/0/1 for ordering purposes (ORDER BY / ranged
// comparisons). ok is false when the values are not comparable (e.g. two
// unrelated types) — callers treat that as Null per spec.md §4.3.
func Compare(a, b any) (result int, ok bool) {
	if af, aok := AsFloat64(a); aok {
		if bf, bok := AsFloat64(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		if ab == bb {
			return 0, true
		}
		if !ab && bb {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}
