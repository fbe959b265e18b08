package util

// Map applies f to every element of coll. f also receives the element index.
func Map[A any, B any](coll []A, f func(A, uint64) B) []B {
	out := make([]B, len(coll))
	for i, a := range coll {
		out[i] = f(a, uint64(i))
	}
	return out
}

// Filter returns the elements of coll for which f is true
func Filter[A any](coll []A, f func(A) bool) []A {
	out := make([]A, 0, len(coll))
	for _, a := range coll {
		if f(a) {
			out = append(out, a)
		}
	}
	return out
}

// Reduce folds coll into an accumulator
func Reduce[A any, B any](coll []A, f func(B, A) B, initial B) B {
	acc := initial
	for _, a := range coll {
		acc = f(acc, a)
	}
	return acc
}
