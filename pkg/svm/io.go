package svm

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

func (c *Classifier) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	return enc.Encode(c)
}

func Load(r io.Reader) (*Classifier, error) {
	c := &Classifier{}
	if err := json.NewDecoder(r).Decode(c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that the model is internally consistent
func (c *Classifier) Validate() error {
	if len(c.SupportVectors) != len(c.Coefficients) {
		return fmt.Errorf("Classifier has %v support vectors but %v coefficients", len(c.SupportVectors), len(c.Coefficients))
	}
	for _, sv := range c.SupportVectors {
		if len(sv) != c.Dimensions() {
			return fmt.Errorf("Classifier support vectors have inconsistent lengths")
		}
	}
	switch c.Kernel.Type {
	case KernelLinear, KernelRBF, KernelPolynomial, "":
	default:
		return fmt.Errorf("Unknown kernel type '%v'", c.Kernel.Type)
	}
	return nil
}

func (c *Classifier) SaveFile(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := c.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func LoadFile(filename string) (*Classifier, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	return c, nil
}
