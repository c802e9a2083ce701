// Package seqs provides small combinators over iter.Seq.
package seqs

import "iter"

// Distinct yields the first element seen for each key and drops later ones.
// The seen set is local to each range over the returned sequence.
func Distinct[T any, K comparable](seq iter.Seq[T], key func(T) K) iter.Seq[T] {
	return func(yield func(T) bool) {
		seen := make(map[K]struct{})
		for v := range seq {
			k := key(v)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			if !yield(v) {
				return
			}
		}
	}
}

// Filter yields the elements for which keep returns true. A nil keep yields
// everything.
func Filter[T any](seq iter.Seq[T], keep func(T) bool) iter.Seq[T] {
	if keep == nil {
		return seq
	}
	return func(yield func(T) bool) {
		for v := range seq {
			if keep(v) && !yield(v) {
				return
			}
		}
	}
}
