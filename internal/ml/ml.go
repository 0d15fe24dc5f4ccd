// Package ml holds the small classical estimators the stress tools train on
// in-memory tables: a random forest classifier, k-means clustering, an
// isolation forest and an L2 logistic regression, plus the evaluation helpers
// used to report on them.
//
// Every estimator takes rows as [][]float64 with a fixed column order and is
// deterministic for a given seed.
package ml

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFitted is returned when predicting with an estimator that has not
	// been fitted.
	ErrNotFitted = errors.New("estimator is not fitted")
	// ErrSingleClass is returned when a classifier needs both classes in its
	// training labels and only one is present.
	ErrSingleClass = errors.New("training labels contain a single class")
)

func checkMatrix(x [][]float64) (int, error) {
	if len(x) == 0 {
		return 0, errors.New("empty training set")
	}
	width := len(x[0])
	if width == 0 {
		return 0, errors.New("training rows have no features")
	}
	for i, row := range x {
		if len(row) != width {
			return 0, fmt.Errorf("row %d has %d features, want %d", i, len(row), width)
		}
	}
	return width, nil
}

func checkLabels(x [][]float64, y []int) error {
	if len(x) != len(y) {
		return fmt.Errorf("got %d rows and %d labels", len(x), len(y))
	}
	for i, label := range y {
		if label < 0 {
			return fmt.Errorf("label %d at row %d is negative", label, i)
		}
	}
	return nil
}
