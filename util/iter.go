package util

import "iter"

func SeqOf[T any](items ...T) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, item := range items {
			if !yield(item) {
				return
			}
		}
	}
}

// Seq2At returns the pair at position idx of seq, or exists == false when seq is shorter.
func Seq2At[U, V any](seq iter.Seq2[U, V], idx int) (first U, second V, exists bool) {
	var i int
	for item1, item2 := range seq {
		if i == idx {
			return item1, item2, true
		}
		i++
	}
	return first, second, false
}

// Collect2 drains seq, stopping at the first error.
func Collect2[T any](seq iter.Seq2[T, error]) (out []T, _ error) {
	for item, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}
