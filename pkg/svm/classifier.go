// Package svm holds a support vector classifier, and a trainer for linear SVMs.
package svm

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrSupportVectorCount is returned when a linear classifier is required, but the
	// model does not consist of exactly one linear weight vector.
	ErrSupportVectorCount = errors.New("expected exactly one linear support vector")
	ErrNotConverged       = errors.New("svm solver did not converge")
)

type KernelType string

const (
	KernelLinear     KernelType = "linear"
	KernelRBF        KernelType = "rbf"
	KernelPolynomial KernelType = "poly"
)

type Kernel struct {
	Type   KernelType `json:"type"`
	Gamma  float64    `json:"gamma,omitempty"`
	Degree int        `json:"degree,omitempty"`
	Coef0  float64    `json:"coef0,omitempty"`
}

func (k Kernel) Eval(a, b []float64) float64 {
	switch k.Type {
	case KernelRBF:
		d := 0.0
		for i := range a {
			t := a[i] - b[i]
			d += t * t
		}
		return math.Exp(-k.Gamma * d)
	case KernelPolynomial:
		return math.Pow(k.Gamma*floats.Dot(a, b)+k.Coef0, float64(k.Degree))
	}
	return floats.Dot(a, b)
}

// Logistic maps a decision value s to a probability 1 / (1 + exp(A*s + B))
type Logistic struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func (l *Logistic) Probability(score float64) float64 {
	f := l.A*score + l.B
	// Evaluate in a form that can't overflow
	if f >= 0 {
		return math.Exp(-f) / (1 + math.Exp(-f))
	}
	return 1 / (1 + math.Exp(f))
}

// Classifier is a kernel machine: score(x) = sum_i Coefficients[i] * K(SupportVectors[i], x) + Bias
type Classifier struct {
	Kernel         Kernel      `json:"kernel"`
	SupportVectors [][]float64 `json:"supportVectors"`
	Coefficients   []float64   `json:"coefficients"`
	Bias           float64     `json:"bias"`
	Logistic       *Logistic   `json:"logistic,omitempty"`
}

// NewLinear creates a linear classifier from a weight vector
func NewLinear(weights []float64, bias float64) *Classifier {
	return &Classifier{
		Kernel:         Kernel{Type: KernelLinear},
		SupportVectors: [][]float64{weights},
		Coefficients:   []float64{1},
		Bias:           bias,
	}
}

func (c *Classifier) IsLinear() bool {
	return c.Kernel.Type == KernelLinear || c.Kernel.Type == ""
}

// Dimensions is the length of the feature vectors that the classifier accepts
func (c *Classifier) Dimensions() int {
	if len(c.SupportVectors) == 0 {
		return 0
	}
	return len(c.SupportVectors[0])
}

func (c *Classifier) Score(x []float64) float64 {
	s := c.Bias
	for i, sv := range c.SupportVectors {
		s += c.Coefficients[i] * c.Kernel.Eval(sv, x)
	}
	return s
}

// Classify returns true if the score of x is above threshold
func (c *Classifier) Classify(x []float64, threshold float64) bool {
	return c.Score(x) > threshold
}

// Probability returns the probability that x is positive.
// Without a calibrated logistic, this is the raw logistic of the score.
func (c *Classifier) Probability(x []float64) float64 {
	if c.Logistic != nil {
		return c.Logistic.Probability(c.Score(x))
	}
	return 1 / (1 + math.Exp(-c.Score(x)))
}

// LinearWeights returns the single weight vector of a linear classifier.
// The returned slice is a copy, already multiplied by its coefficient.
func (c *Classifier) LinearWeights() ([]float64, error) {
	if !c.IsLinear() {
		return nil, fmt.Errorf("%w: kernel is %v", ErrSupportVectorCount, c.Kernel.Type)
	}
	if len(c.SupportVectors) != 1 || len(c.Coefficients) != 1 {
		return nil, fmt.Errorf("%w: model has %v", ErrSupportVectorCount, len(c.SupportVectors))
	}
	w := make([]float64, len(c.SupportVectors[0]))
	floats.ScaleTo(w, c.Coefficients[0], c.SupportVectors[0])
	return w, nil
}
