package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LogisticRegression is a binary L2-regularized logistic model fitted with
// damped Newton steps. C is the inverse regularization strength; the
// intercept is not penalized.
type LogisticRegression struct {
	C       float64
	MaxIter int
	Tol     float64

	Coef      []float64
	Intercept float64
}

// NewLogisticRegression returns a model with C = 1.
func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{C: 1, MaxIter: 100, Tol: 1e-8}
}

// Fit trains on labels in {0, 1}. Both classes must be present.
func (m *LogisticRegression) Fit(x [][]float64, y []int) error {
	width, err := checkMatrix(x)
	if err != nil {
		return err
	}
	if err := checkLabels(x, y); err != nil {
		return err
	}
	var positives int
	for i, label := range y {
		if label > 1 {
			return fmt.Errorf("label %d at row %d is not binary", label, i)
		}
		positives += label
	}
	if positives == 0 || positives == len(y) {
		return ErrSingleClass
	}

	c := m.C
	if c <= 0 {
		c = 1
	}
	maxIter := m.MaxIter
	if maxIter <= 0 {
		maxIter = 100
	}

	// The last parameter is the intercept.
	dim := width + 1
	w := make([]float64, dim)
	loss := m.objective(x, y, w, c)

	grad := mat.NewVecDense(dim, nil)
	hess := mat.NewDense(dim, dim, nil)
	var step mat.VecDense

	for iter := 0; iter < maxIter; iter++ {
		grad.Zero()
		hess.Zero()
		for i, row := range x {
			p := sigmoid(dot(w, row))
			r := p - float64(y[i])
			s := p * (1 - p)
			for a := 0; a < dim; a++ {
				xa := feature(row, a)
				grad.SetVec(a, grad.AtVec(a)+r*xa)
				for b := a; b < dim; b++ {
					hess.Set(a, b, hess.At(a, b)+s*xa*feature(row, b))
				}
			}
		}
		for a := 0; a < dim; a++ {
			for b := 0; b < a; b++ {
				hess.Set(a, b, hess.At(b, a))
			}
		}
		for a := 0; a < width; a++ {
			grad.SetVec(a, grad.AtVec(a)+w[a]/c)
			hess.Set(a, a, hess.At(a, a)+1/c)
		}
		hess.Set(width, width, hess.At(width, width)+1e-10)

		if err := step.SolveVec(hess, grad); err != nil {
			return fmt.Errorf("newton step: %w", err)
		}

		// Halve the step until the objective stops increasing.
		scale := 1.0
		next := make([]float64, dim)
		var nextLoss float64
		for k := 0; k < 30; k++ {
			for a := range next {
				next[a] = w[a] - scale*step.AtVec(a)
			}
			nextLoss = m.objective(x, y, next, c)
			if nextLoss <= loss {
				break
			}
			scale /= 2
		}

		moved := 0.0
		for a := range w {
			moved = math.Max(moved, math.Abs(next[a]-w[a]))
		}
		copy(w, next)
		loss = nextLoss
		if moved < m.tol() {
			break
		}
	}

	m.Coef = w[:width]
	m.Intercept = w[width]
	return nil
}

// PredictProba returns the probability of the positive class.
func (m *LogisticRegression) PredictProba(row []float64) (float64, error) {
	if m.Coef == nil {
		return 0, ErrNotFitted
	}
	if len(row) != len(m.Coef) {
		return 0, fmt.Errorf("row has %d features, model was fitted on %d", len(row), len(m.Coef))
	}
	z := m.Intercept
	for j, v := range row {
		z += m.Coef[j] * v
	}
	return sigmoid(z), nil
}

// Predict returns 1 when the positive class probability exceeds one half.
func (m *LogisticRegression) Predict(row []float64) (int, error) {
	p, err := m.PredictProba(row)
	if err != nil {
		return 0, err
	}
	if p > 0.5 {
		return 1, nil
	}
	return 0, nil
}

func (m *LogisticRegression) tol() float64 {
	if m.Tol <= 0 {
		return 1e-8
	}
	return m.Tol
}

func (m *LogisticRegression) objective(x [][]float64, y []int, w []float64, c float64) float64 {
	width := len(w) - 1
	total := 0.0
	for i, row := range x {
		z := dot(w, row)
		// log(1 + e^z) - y*z, evaluated without overflow.
		total += math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z))) - float64(y[i])*z
	}
	penalty := 0.0
	for a := 0; a < width; a++ {
		penalty += w[a] * w[a]
	}
	return total + penalty/(2*c)
}

// dot computes w·[row, 1].
func dot(w, row []float64) float64 {
	z := w[len(w)-1]
	for j, v := range row {
		z += w[j] * v
	}
	return z
}

func feature(row []float64, a int) float64 {
	if a == len(row) {
		return 1
	}
	return row[a]
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
