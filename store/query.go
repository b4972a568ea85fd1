package store

import (
	"iter"
)

// Query transforms a sequence of documents. Queries compose: the output of
// one can feed the next (see Compose).
type Query[D any] func(docs iter.Seq[D]) iter.Seq[D]

// Where keeps the documents matching pred.
func Where[D any](pred func(D) bool) Query[D] {
	return func(docs iter.Seq[D]) iter.Seq[D] {
		return func(yield func(D) bool) {
			for d := range docs {
				if pred(d) && !yield(d) {
					return
				}
			}
		}
	}
}

// Limit stops after n documents.
func Limit[D any](n int) Query[D] {
	return func(docs iter.Seq[D]) iter.Seq[D] {
		return func(yield func(D) bool) {
			if n <= 0 {
				return
			}
			i := 0
			for d := range docs {
				if !yield(d) {
					return
				}
				i++
				if i >= n {
					return
				}
			}
		}
	}
}

// Compose chains queries left to right. Nil queries are skipped.
func Compose[D any](queries ...Query[D]) Query[D] {
	return func(docs iter.Seq[D]) iter.Seq[D] {
		for _, q := range queries {
			if q != nil {
				docs = q(docs)
			}
		}
		return docs
	}
}

// Select projects each document of a result sequence.
func Select[D, R any](seq iter.Seq2[D, error], fn func(D) R) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		for d, err := range seq {
			if err != nil {
				var zero R
				yield(zero, err)
				return
			}
			if !yield(fn(d), nil) {
				return
			}
		}
	}
}

// Collect drains a result sequence into a slice.
func Collect[D any](seq iter.Seq2[D, error]) ([]D, error) {
	var docs []D
	for d, err := range seq {
		if err != nil {
			return docs, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// First returns the first document of a result sequence, or nil.
func First[D any](seq iter.Seq2[D, error]) (*D, error) {
	for d, err := range seq {
		if err != nil {
			return nil, err
		}
		return &d, nil
	}
	return nil, nil
}

// applyQuery runs q over a fallible source. The first source error stops the
// source; it is yielded after whatever q produced before it.
func applyQuery[D any](source iter.Seq2[D, error], q Query[D]) iter.Seq2[D, error] {
	if q == nil {
		return source
	}
	return func(yield func(D, error) bool) {
		var sourceErr error
		docs := func(inner func(D) bool) {
			for d, err := range source {
				if err != nil {
					sourceErr = err
					return
				}
				if !inner(d) {
					return
				}
			}
		}
		for d := range q(docs) {
			if !yield(d, nil) {
				return
			}
		}
		if sourceErr != nil {
			var zero D
			yield(zero, sourceErr)
		}
	}
}

// errSeq yields a single error.
func errSeq[D any](err error) iter.Seq2[D, error] {
	return func(yield func(D, error) bool) {
		var zero D
		yield(zero, err)
	}
}
