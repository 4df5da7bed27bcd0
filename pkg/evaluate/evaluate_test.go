package evaluate

import (
	"bytes"
	"math"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/windet/pkg/detect"
	"github.com/cyclopcam/windet/pkg/geom"
	"github.com/cyclopcam/windet/pkg/imgsrc"
	"github.com/stretchr/testify/require"
)

func positive(x, y, w, h int) imgsrc.Annotation {
	return imgsrc.Annotation{Box: geom.NewRect(x, y, w, h), Category: imgsrc.CategoryPositive}
}

func fuzzy(x, y, w, h int) imgsrc.Annotation {
	return imgsrc.Annotation{Box: geom.NewRect(x, y, w, h), Category: imgsrc.CategoryFuzzy}
}

func det(x, y, w, h int, score float64) detect.Detection {
	return detect.Detection{Box: geom.NewRect(x, y, w, h), Score: score}
}

func TestSingleTruePositive(t *testing.T) {
	e, err := NewEvaluator(0.5)
	require.NoError(t, err)
	r := e.AddImage([]detect.Detection{det(10, 10, 40, 40, 2)}, imgsrc.Annotations{positive(10, 10, 40, 40)}, 5*time.Millisecond)
	require.Equal(t, []Outcome{OutcomeTruePositive}, r.Outcomes)
	require.Equal(t, 0, len(r.FalseNegatives))
	require.Equal(t, 0, r.Count(OutcomeFalsePositive))
	require.Equal(t, []ClassifiedScore{{Score: 2, TruePositive: true}}, e.Scores())

	s := e.Summary()
	require.Equal(t, 0.0, s.DefaultMissRate)
	require.Equal(t, 0.0, s.DefaultFPPI)
	require.Equal(t, 0.0, s.LogAverageMissRate)
	require.Equal(t, 5*time.Millisecond, s.AverageTime)
}

func TestFuzzyBeatsWeakPositive(t *testing.T) {
	anns := imgsrc.Annotations{
		fuzzy(0, 0, 100, 90),    // IoU 0.9 with the detection
		positive(0, 0, 30, 100), // IoU 0.3 with the detection
	}
	dets := []detect.Detection{det(0, 0, 100, 100, 1), det(0, 0, 100, 100, 0.5)}
	r := Classify(dets, anns, 0.5)
	// The second detection finds the fuzzy region consumed
	require.Equal(t, []Outcome{OutcomeIgnored, OutcomeFalsePositive}, r.Outcomes)
	require.Equal(t, []geom.Rect{geom.NewRect(0, 0, 30, 100)}, r.FalseNegatives)
	require.Equal(t, []ClassifiedScore{{Score: 0.5, TruePositive: false}}, r.Scores())
}

func TestTieFavorsTruePositive(t *testing.T) {
	anns := imgsrc.Annotations{fuzzy(0, 0, 10, 10), positive(0, 0, 10, 10)}
	r := Classify([]detect.Detection{det(0, 0, 10, 10, 1)}, anns, 0.5)
	require.Equal(t, []Outcome{OutcomeTruePositive}, r.Outcomes)
	require.Equal(t, 0, len(r.FalseNegatives))
}

func TestClassifySortsDetections(t *testing.T) {
	anns := imgsrc.Annotations{positive(0, 0, 10, 10)}
	// The better detection gets the match, even though it comes second
	r := Classify([]detect.Detection{det(0, 0, 10, 10, 1), det(1, 0, 10, 10, 3)}, anns, 0.5)
	require.Equal(t, 3.0, r.Detections[0].Score)
	require.Equal(t, []Outcome{OutcomeTruePositive, OutcomeFalsePositive}, r.Outcomes)
}

func TestClassifyZeroThreshold(t *testing.T) {
	dets := []detect.Detection{det(0, 0, 10, 10, 2), det(50, 50, 10, 10, 1)}
	// Nothing to match against
	r := Classify(dets, nil, 0)
	require.Equal(t, []Outcome{OutcomeFalsePositive, OutcomeFalsePositive}, r.Outcomes)

	// Only one fuzzy region, which the first detection consumes
	r = Classify(dets, imgsrc.Annotations{fuzzy(0, 0, 10, 10)}, 0)
	require.Equal(t, []Outcome{OutcomeIgnored, OutcomeFalsePositive}, r.Outcomes)

	// Only one positive
	r = Classify(dets, imgsrc.Annotations{positive(0, 0, 10, 10)}, 0)
	require.Equal(t, []Outcome{OutcomeTruePositive, OutcomeFalsePositive}, r.Outcomes)
	require.Equal(t, 0, len(r.FalseNegatives))
}

func TestClassifyExhaustive(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 50; iter++ {
		anns := imgsrc.Annotations{}
		nAnns := rng.Intn(6)
		for i := 0; i < nAnns; i++ {
			a := positive(rng.Intn(100), rng.Intn(100), 10+rng.Intn(20), 10+rng.Intn(20))
			if rng.Intn(3) == 0 {
				a.Category = imgsrc.CategoryFuzzy
			}
			anns = append(anns, a)
		}
		dets := []detect.Detection{}
		nDets := rng.Intn(10)
		for i := 0; i < nDets; i++ {
			dets = append(dets, det(rng.Intn(100), rng.Intn(100), 10+rng.Intn(20), 10+rng.Intn(20), rng.NormFloat64()))
		}
		r := Classify(dets, anns, 0.5)
		require.Equal(t, len(dets), len(r.Outcomes))
		tp := r.Count(OutcomeTruePositive)
		fp := r.Count(OutcomeFalsePositive)
		ignored := r.Count(OutcomeIgnored)
		require.Equal(t, len(dets), tp+fp+ignored)
		require.Equal(t, len(anns.Positives()), tp+len(r.FalseNegatives))
		require.LessOrEqual(t, ignored, len(anns.Fuzzies()))
		require.Equal(t, tp+fp, len(r.Scores()))
	}
}

func TestMergeSorted(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	randomList := func(n int) []ClassifiedScore {
		s := []ClassifiedScore{}
		v := 10.0
		for i := 0; i < n; i++ {
			v -= float64(rng.Intn(3))
			s = append(s, ClassifiedScore{Score: v, TruePositive: rng.Intn(2) == 0})
		}
		return s
	}
	for iter := 0; iter < 20; iter++ {
		a := randomList(rng.Intn(10))
		b := randomList(rng.Intn(10))
		m := MergeSorted(a, b)
		require.Equal(t, len(a)+len(b), len(m))
		require.True(t, IsSorted(m))
	}
}

func newTestEvaluator(images, positives int, scores []ClassifiedScore) *Evaluator {
	return &Evaluator{
		OverlapThreshold: 0.5,
		images:           images,
		positives:        positives,
		scores:           scores,
	}
}

func TestSummary(t *testing.T) {
	e := newTestEvaluator(2, 2, []ClassifiedScore{
		{3, true},
		{2, false},
		{1, true},
		{-1, false},
	})
	s := e.Summary()
	for i := 0; i < 7; i++ {
		// FPPI jumps from 0 to 0.5 at score 2
		require.Equal(t, 0.5, s.MissRates[i], "%v", i)
		require.Equal(t, 3.0, s.Thresholds[i], "%v", i)
	}
	// FPPI jumps from 0.5 to 1 at score -1
	require.Equal(t, 0.0, s.MissRates[7])
	require.Equal(t, 1.0, s.Thresholds[7])
	// FPPI 1 is never exceeded
	require.Equal(t, 0.0, s.MissRates[8])
	require.Equal(t, -1.0, s.Thresholds[8])
	require.InDelta(t, 3.5/9, s.LogAverageMissRate, 1e-12)
	require.Equal(t, 0.0, s.DefaultMissRate)
	require.Equal(t, 0.5, s.DefaultFPPI)
	require.Contains(t, s.String(), "Log-average miss rate: 0.3889")
}

func TestSummaryTies(t *testing.T) {
	a := newTestEvaluator(4, 3, []ClassifiedScore{{2, true}, {1, false}, {1, true}, {1, false}, {0.5, true}})
	b := newTestEvaluator(4, 3, []ClassifiedScore{{2, true}, {1, true}, {1, false}, {1, false}, {0.5, true}})
	require.Equal(t, a.Summary(), b.Summary())
}

func TestSummaryEmpty(t *testing.T) {
	s := newTestEvaluator(3, 2, nil).Summary()
	require.Equal(t, 1.0, s.LogAverageMissRate)
	require.Equal(t, 1.0, s.DefaultMissRate)
	require.True(t, math.IsInf(s.Thresholds[0], 1))
}

func TestCurves(t *testing.T) {
	e := newTestEvaluator(2, 4, []ClassifiedScore{{5, true}, {4, false}, {3, true}, {2, true}, {1, false}})
	pr := e.PrecisionRecall()
	require.Equal(t, 5, len(pr))
	for i := 1; i < len(pr); i++ {
		require.GreaterOrEqual(t, pr[i].X, pr[i-1].X)
	}
	require.Equal(t, CurvePoint{X: 0.25, Y: 1, Score: 5}, pr[0])
	require.Equal(t, CurvePoint{X: 0.25, Y: 0.5, Score: 4}, pr[1])
	require.Equal(t, CurvePoint{X: 0.75, Y: 0.6, Score: 1}, pr[4])

	det := e.DET()
	require.Equal(t, CurvePoint{X: 0.5, Y: 0.75, Score: 4}, det[1])
	require.Equal(t, CurvePoint{X: 1, Y: 0.25, Score: 1}, det[4])

	roc := e.ROC()
	require.Equal(t, CurvePoint{X: 2, Y: 0.75, Score: 1}, roc[4])

	buf := bytes.Buffer{}
	require.NoError(t, WriteCurve(&buf, det[:2]))
	require.Equal(t, "0 0.75 5\n0.5 0.75 4\n", buf.String())
}

func TestDataRoundTrip(t *testing.T) {
	e, err := NewEvaluator(0.5)
	require.NoError(t, err)
	e.Threshold = -0.25
	e.AddImage([]detect.Detection{det(0, 0, 10, 10, 1.5), det(50, 50, 10, 10, 0.125)}, imgsrc.Annotations{positive(0, 0, 10, 10), positive(20, 20, 10, 10)}, 12*time.Millisecond)
	e.AddImage([]detect.Detection{det(0, 0, 10, 10, 0.7), det(30, 30, 10, 10, -0.3)}, imgsrc.Annotations{positive(30, 30, 10, 10)}, 7*time.Millisecond)

	buf := bytes.Buffer{}
	require.NoError(t, e.WriteData(&buf))
	require.Equal(t, "Threshold -0.25\nImages 2\nPositives 3\nTime 19\nScores\n1.5 1\n0.7 0\n0.125 0\n-0.3 1\n", buf.String())

	loaded, err := ReadData(&buf)
	require.NoError(t, err)
	require.Equal(t, e.Scores(), loaded.Scores())
	require.Equal(t, e.Threshold, loaded.Threshold)
	require.Equal(t, e.Summary(), loaded.Summary())

	filename := filepath.Join(t.TempDir(), "test.eval")
	require.NoError(t, e.SaveFile(filename))
	fromFile, err := LoadFile(filename)
	require.NoError(t, err)
	require.Equal(t, e.Summary(), fromFile.Summary())

	_, err = ReadData(bytes.NewReader([]byte("Threshold 0\nImages 1\nPositives 1\nTime 0\nScores\n1 1\n2 0\n")))
	require.Error(t, err)
	_, err = ReadData(bytes.NewReader([]byte("Threshold 0\nImages 1\n")))
	require.Error(t, err)
	_, err = ReadData(bytes.NewReader([]byte("Threshold 0\nImages 1\nPositives 1\nTime 0\nScores\n1 yes\n")))
	require.Error(t, err)
}

func TestMerge(t *testing.T) {
	a := newTestEvaluator(2, 3, []ClassifiedScore{{3, true}, {1, false}})
	a.time.AddSample(10 * time.Millisecond)
	b := newTestEvaluator(1, 1, []ClassifiedScore{{2, true}, {1, true}})
	b.time.AddSample(20 * time.Millisecond)
	a.Merge(b)
	require.Equal(t, 3, a.Images())
	require.Equal(t, 4, a.Positives())
	require.Equal(t, 30*time.Millisecond, a.TotalTime())
	require.Equal(t, 10*time.Millisecond, a.AverageTime())
	require.Equal(t, []ClassifiedScore{{3, true}, {2, true}, {1, false}, {1, true}}, a.Scores())
}

func TestRenderCurve(t *testing.T) {
	e := newTestEvaluator(2, 4, []ClassifiedScore{{5, true}, {4, false}, {3, true}, {2, true}, {1, false}})
	buf := bytes.Buffer{}
	require.NoError(t, RenderCurvePNG(&buf, "Precision/Recall", "Recall", "Precision", NamedCurve{Name: "fold 1", Points: e.PrecisionRecall()}))
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))

	err := RenderCurvePNG(&bytes.Buffer{}, "empty", "x", "y", NamedCurve{Name: "one", Points: e.PrecisionRecall()[:1]})
	require.Error(t, err)
}

func TestNewEvaluatorErrors(t *testing.T) {
	_, err := NewEvaluator(0)
	require.ErrorIs(t, err, detect.ErrInvalidOverlapThreshold)
	_, err = NewEvaluator(1.5)
	require.ErrorIs(t, err, detect.ErrInvalidOverlapThreshold)
}
