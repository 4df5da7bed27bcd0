package evaluate

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
)

// NumReferenceRates is the number of FPPI rates that the log-average miss rate is sampled at
const NumReferenceRates = 9

// ReferenceFPPI returns the reference rate i, which is 10^(-2 + i/4)
func ReferenceFPPI(i int) float64 {
	return math.Pow(10, -2+0.25*float64(i))
}

// The reference rates that are reported individually (FPPI 0.01, 0.1 and 1)
var reportedRates = []int{0, 4, 8}

type Summary struct {
	Images             int
	Positives          int
	Detections         int
	AverageTime        time.Duration
	FramesPerSecond    float64
	MissRates          [NumReferenceRates]float64 // Miss rate in effect just before each reference FPPI is exceeded
	Thresholds         [NumReferenceRates]float64 // Score threshold that produces MissRates[i]
	LogAverageMissRate float64
	DefaultMissRate    float64 // Miss rate with a score threshold of zero
	DefaultFPPI        float64 // FPPI with a score threshold of zero
}

// Summary walks the sorted score list once. Detections with equal scores can't be
// separated by any threshold, so each group of equal scores is applied together.
func (e *Evaluator) Summary() Summary {
	s := Summary{
		Images:      e.images,
		Positives:   e.positives,
		Detections:  len(e.scores),
		AverageTime: e.AverageTime(),
	}
	if s.AverageTime > 0 {
		s.FramesPerSecond = float64(time.Second) / float64(s.AverageTime)
	}

	counts := e.initialCounts()
	threshold := math.Inf(1)
	ref := 0
	haveDefault := false
	for i := 0; i < len(e.scores); {
		groupScore := e.scores[i].Score
		if !haveDefault && groupScore < 0 {
			s.DefaultMissRate, s.DefaultFPPI = counts.MissRate(), counts.FPPI()
			haveDefault = true
		}
		next := counts
		for ; i < len(e.scores) && e.scores[i].Score == groupScore; i++ {
			next.add(e.scores[i])
		}
		for ref < NumReferenceRates && next.FPPI() > ReferenceFPPI(ref) {
			s.MissRates[ref] = counts.MissRate()
			s.Thresholds[ref] = threshold
			ref++
		}
		counts = next
		threshold = groupScore
	}
	if !haveDefault {
		s.DefaultMissRate, s.DefaultFPPI = counts.MissRate(), counts.FPPI()
	}
	// These rates were never exceeded
	for ; ref < NumReferenceRates; ref++ {
		s.MissRates[ref] = counts.MissRate()
		s.Thresholds[ref] = threshold
	}
	s.LogAverageMissRate, _ = stats.Mean(s.MissRates[:])
	return s
}

func (s Summary) String() string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "Images: %v\n", s.Images)
	fmt.Fprintf(&b, "Positives: %v\n", s.Positives)
	fmt.Fprintf(&b, "Detections: %v\n", s.Detections)
	fmt.Fprintf(&b, "Average time: %.1f ms (%.2f fps)\n", float64(s.AverageTime)/float64(time.Millisecond), s.FramesPerSecond)
	for _, i := range reportedRates {
		fmt.Fprintf(&b, "Miss rate at %.2f FPPI: %.4f (threshold %.4f)\n", ReferenceFPPI(i), s.MissRates[i], s.Thresholds[i])
	}
	fmt.Fprintf(&b, "Log-average miss rate: %.4f\n", s.LogAverageMissRate)
	fmt.Fprintf(&b, "Default (threshold 0): miss rate %.4f, FPPI %.4f\n", s.DefaultMissRate, s.DefaultFPPI)
	return b.String()
}
