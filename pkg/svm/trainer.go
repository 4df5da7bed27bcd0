package svm

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Trainer fits a linear SVM with hinge loss, by dual coordinate descent.
// The bias is learned as the weight of an extra constant feature.
type Trainer struct {
	C                   float64 // Regularization constant. Larger values fit the training data more tightly.
	CompensateImbalance bool    // Weight each class inversely to its size
	Probabilistic       bool    // Fit a logistic to the decision values
	Epsilon             float64 // Stop when the projected gradient spread falls below this
	MaxIterations       int     // Number of passes over the data before giving up
}

func NewTrainer(c float64) *Trainer {
	return &Trainer{
		C:             c,
		Epsilon:       0.01,
		MaxIterations: 2000,
	}
}

// Train fits a linear classifier that scores positives above zero and negatives below zero.
// rng determines the order in which examples are visited.
func (t *Trainer) Train(positives, negatives [][]float64, rng *rand.Rand) (*Classifier, error) {
	if len(positives) == 0 || len(negatives) == 0 {
		return nil, fmt.Errorf("Need positive and negative examples to train, but have %v positives and %v negatives", len(positives), len(negatives))
	}
	if !(t.C > 0) {
		return nil, fmt.Errorf("C must be positive, not %v", t.C)
	}
	dims := len(positives[0])
	n := len(positives) + len(negatives)
	x := make([][]float64, 0, n)
	y := make([]float64, 0, n)
	for _, p := range positives {
		x = append(x, p)
		y = append(y, 1)
	}
	for _, q := range negatives {
		x = append(x, q)
		y = append(y, -1)
	}
	for _, v := range x {
		if len(v) != dims {
			return nil, fmt.Errorf("Inconsistent feature vector lengths (%v and %v)", dims, len(v))
		}
	}

	cPos, cNeg := t.C, t.C
	if t.CompensateImbalance {
		cPos = t.C * float64(n) / (2 * float64(len(positives)))
		cNeg = t.C * float64(n) / (2 * float64(len(negatives)))
	}

	w, bias, err := t.solve(x, y, cPos, cNeg, rng)
	if err != nil {
		return nil, err
	}
	if floats.Norm(w, 2) == 0 {
		return nil, fmt.Errorf("%w: solution has no support vectors", ErrSupportVectorCount)
	}

	cls := NewLinear(w, bias)
	if t.Probabilistic {
		scores := make([]float64, n)
		for i := range x {
			scores[i] = cls.Score(x[i])
		}
		cls.Logistic = FitLogistic(scores, y)
	}
	return cls, nil
}

func (t *Trainer) solve(x [][]float64, y []float64, cPos, cNeg float64, rng *rand.Rand) ([]float64, float64, error) {
	epsilon := t.Epsilon
	if epsilon <= 0 {
		epsilon = 0.01
	}
	maxIter := t.MaxIterations
	if maxIter <= 0 {
		maxIter = 2000
	}

	n := len(x)
	w := make([]float64, len(x[0]))
	bias := 0.0
	alpha := make([]float64, n)
	upper := make([]float64, n)
	qii := make([]float64, n)
	order := make([]int, n)
	for i := range x {
		if y[i] > 0 {
			upper[i] = cPos
		} else {
			upper[i] = cNeg
		}
		qii[i] = floats.Dot(x[i], x[i]) + 1
		order[i] = i
	}

	for iter := 0; iter < maxIter; iter++ {
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		maxPG := math.Inf(-1)
		minPG := math.Inf(1)
		for _, i := range order {
			g := y[i]*(floats.Dot(w, x[i])+bias) - 1
			pg := g
			if alpha[i] == 0 {
				pg = math.Min(g, 0)
			} else if alpha[i] == upper[i] {
				pg = math.Max(g, 0)
			}
			maxPG = math.Max(maxPG, pg)
			minPG = math.Min(minPG, pg)
			if math.Abs(pg) < 1e-12 {
				continue
			}
			old := alpha[i]
			alpha[i] = math.Min(math.Max(alpha[i]-g/qii[i], 0), upper[i])
			d := (alpha[i] - old) * y[i]
			floats.AddScaled(w, d, x[i])
			bias += d
		}
		if maxPG-minPG < epsilon {
			return w, bias, nil
		}
	}
	return nil, 0, fmt.Errorf("%w after %v iterations", ErrNotConverged, maxIter)
}

var errLogisticFit = errors.New("logistic fit failed")

// FitLogistic fits the parameters of a sigmoid that maps decision values to probabilities
// (Platt scaling), using Newton's method with a backtracking line search.
// labels are +1 or -1.
func FitLogistic(scores, labels []float64) *Logistic {
	l, err := fitLogistic(scores, labels)
	if err != nil {
		// Fall back to the raw score, which is still monotonic
		return &Logistic{A: -1, B: 0}
	}
	return l
}

func fitLogistic(scores, labels []float64) (*Logistic, error) {
	const (
		maxIter = 100
		minStep = 1e-10
		sigma   = 1e-12
		eps     = 1e-5
	)
	nPos, nNeg := 0.0, 0.0
	for _, y := range labels {
		if y > 0 {
			nPos++
		} else {
			nNeg++
		}
	}
	hiTarget := (nPos + 1) / (nPos + 2)
	loTarget := 1 / (nNeg + 2)
	target := make([]float64, len(labels))
	for i, y := range labels {
		if y > 0 {
			target[i] = hiTarget
		} else {
			target[i] = loTarget
		}
	}

	a := 0.0
	b := math.Log((nNeg + 1) / (nPos + 1))
	objective := func(a, b float64) float64 {
		f := 0.0
		for i, s := range scores {
			fApB := s*a + b
			if fApB >= 0 {
				f += target[i]*fApB + math.Log(1+math.Exp(-fApB))
			} else {
				f += (target[i]-1)*fApB + math.Log(1+math.Exp(fApB))
			}
		}
		return f
	}
	fval := objective(a, b)

	for iter := 0; iter < maxIter; iter++ {
		h11, h22, h21 := sigma, sigma, 0.0
		g1, g2 := 0.0, 0.0
		for i, s := range scores {
			fApB := s*a + b
			var p, q float64
			if fApB >= 0 {
				p = math.Exp(-fApB) / (1 + math.Exp(-fApB))
				q = 1 / (1 + math.Exp(-fApB))
			} else {
				p = 1 / (1 + math.Exp(fApB))
				q = math.Exp(fApB) / (1 + math.Exp(fApB))
			}
			d2 := p * q
			h11 += s * s * d2
			h22 += d2
			h21 += s * d2
			d1 := target[i] - p
			g1 += s * d1
			g2 += d1
		}
		if math.Abs(g1) < eps && math.Abs(g2) < eps {
			return &Logistic{A: a, B: b}, nil
		}
		det := h11*h22 - h21*h21
		dA := -(h22*g1 - h21*g2) / det
		dB := -(-h21*g1 + h11*g2) / det
		gd := g1*dA + g2*dB

		step := 1.0
		for step >= minStep {
			newA := a + step*dA
			newB := b + step*dB
			newF := objective(newA, newB)
			if newF < fval+0.0001*step*gd {
				a, b, fval = newA, newB, newF
				break
			}
			step /= 2
		}
		if step < minStep {
			return nil, fmt.Errorf("%w: line search did not make progress", errLogisticFit)
		}
	}
	return &Logistic{A: a, B: b}, nil
}
