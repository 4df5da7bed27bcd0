package imgsrc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cyclopcam/windet/pkg/geom"
)

// Category of a ground truth annotation
type Category int

const (
	CategoryPositive Category = iota // An object that the detector must find
	CategoryFuzzy                    // An ambiguous region. Never a negative, and never credited as a positive.
)

func (c Category) String() string {
	switch c {
	case CategoryPositive:
		return "positive"
	case CategoryFuzzy:
		return "fuzzy"
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Annotation is a ground truth rectangle
type Annotation struct {
	Box      geom.Rect `json:"box"`
	Category Category  `json:"category"`
}

func (a Annotation) IsFuzzy() bool {
	return a.Category == CategoryFuzzy
}

// Annotations of a single image
type Annotations []Annotation

func (a Annotations) filter(keep func(Annotation) bool) []geom.Rect {
	out := []geom.Rect{}
	for _, ann := range a {
		if keep(ann) {
			out = append(out, ann.Box)
		}
	}
	return out
}

func (a Annotations) Positives() []geom.Rect {
	return a.filter(func(ann Annotation) bool { return ann.Category == CategoryPositive })
}

func (a Annotations) Fuzzies() []geom.Rect {
	return a.filter(func(ann Annotation) bool { return ann.Category == CategoryFuzzy })
}

// NonNegatives is the union of positives and fuzzies. No training negative may overlap these.
func (a Annotations) NonNegatives() []geom.Rect {
	return a.filter(func(ann Annotation) bool { return true })
}

// Mirror reflects all annotations horizontally, for an image of the given width
func (a Annotations) Mirror(imageWidth int) Annotations {
	out := make(Annotations, len(a))
	for i, ann := range a {
		out[i] = Annotation{Box: ann.Box.Mirror(imageWidth), Category: ann.Category}
	}
	return out
}

// ReadAnnotations parses the annotation text format.
// Each non-empty line is "x y width height", optionally followed by "fuzzy".
// Lines starting with # are comments.
func ReadAnnotations(r io.Reader) (Annotations, error) {
	anns := Annotations{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 && len(fields) != 5 {
			return nil, fmt.Errorf("line %v: expected 'x y width height [fuzzy]', got '%v'", lineNo, line)
		}
		var v [4]int
		for i := 0; i < 4; i++ {
			f, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("line %v: %w", lineNo, err)
			}
			v[i] = int(f + 0.5)
		}
		ann := Annotation{Box: geom.NewRect(v[0], v[1], v[2], v[3]), Category: CategoryPositive}
		if len(fields) == 5 {
			switch strings.ToLower(fields[4]) {
			case "fuzzy", "ignore":
				ann.Category = CategoryFuzzy
			case "positive":
			default:
				return nil, fmt.Errorf("line %v: unknown category '%v'", lineNo, fields[4])
			}
		}
		anns = append(anns, ann)
	}
	return anns, scanner.Err()
}

// WriteAnnotations writes annotations in the format read by ReadAnnotations
func WriteAnnotations(w io.Writer, anns Annotations) error {
	for _, a := range anns {
		suffix := ""
		if a.IsFuzzy() {
			suffix = " fuzzy"
		}
		if _, err := fmt.Fprintf(w, "%v %v %v %v%v\n", a.Box.X, a.Box.Y, a.Box.Width, a.Box.Height, suffix); err != nil {
			return err
		}
	}
	return nil
}
