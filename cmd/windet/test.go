package main

import (
	"os"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/windet/pkg/config"
	"github.com/cyclopcam/windet/pkg/evaluate"
	"github.com/cyclopcam/windet/pkg/imgsrc"
	"github.com/cyclopcam/windet/pkg/perfstats"
	"github.com/cyclopcam/windet/pkg/train"
)

// runTest evaluates every fold's model on that fold's held out images.
// With more than one fold, the per-fold results are also merged into "<prefix>-all".
func runTest(logger logs.Log, cfg *config.Config, images *imgsrc.ListSource, numFolds int, prefix string) error {
	var all *evaluate.Evaluator
	for fold := 0; fold < max(numFolds, 1); fold++ {
		name := foldName(prefix, numFolds, fold)
		model, err := train.LoadModelFile(name + ".json")
		if err != nil {
			return err
		}
		_, testSet := images.Fold(numFolds, fold)
		logger.Infof("Testing fold %v on %v images", fold, testSet.Len())
		evaluator, err := evaluateModel(cfg, model, testSet)
		if err != nil {
			return err
		}

		if err := writeEvaluation(logger, evaluator, name); err != nil {
			return err
		}
		if all == nil {
			all, _ = evaluate.NewEvaluator(evaluator.OverlapThreshold)
			all.Threshold = evaluator.Threshold
		}
		all.Merge(evaluator)
	}
	if numFolds > 1 {
		return writeEvaluation(logger, all, prefix+"-all")
	}
	return nil
}

// evaluateModel runs the model's detector over every image of the source.
// The ground truth is adjusted to the aspect ratio of the model's window, which is the shape
// of every box that the detector produces.
func evaluateModel(cfg *config.Config, model *train.Model, images imgsrc.Source) (*evaluate.Evaluator, error) {
	detector, err := model.NewDetector(cfg.DetectorParams(model.Geometry()))
	if err != nil {
		return nil, err
	}
	evaluator, err := evaluate.NewEvaluator(cfg.Evaluation.OverlapThreshold)
	if err != nil {
		return nil, err
	}
	evaluator.Threshold = cfg.Detection.ScoreThreshold

	src := imgsrc.NewAspectRatioSource(images, model.Geometry().AspectRatio())
	src.Reset()
	for src.Next() {
		sw := perfstats.StartStopwatch()
		detections := detector.DetectScored(src.Image())
		evaluator.AddImage(detections, src.Annotations(), sw.Elapsed())
	}
	return evaluator, src.Err()
}

// writeEvaluation writes the raw data, DET curve (text and chart), and summary of an evaluation
func writeEvaluation(logger logs.Log, evaluator *evaluate.Evaluator, name string) error {
	if err := evaluator.SaveFile(name + ".eval"); err != nil {
		return err
	}
	det := evaluator.DET()
	if err := evaluate.SaveCurveFile(name+"-det.txt", det); err != nil {
		return err
	}
	if err := evaluate.SaveCurveFile(name+"-pr.txt", evaluator.PrecisionRecall()); err != nil {
		return err
	}
	if err := evaluate.SaveCurvePNG(name+"-det.png", name, "False positives per image", "Miss rate", evaluate.NamedCurve{Name: "DET", Points: det}); err != nil {
		// A detector that produced fewer than 2 detections has no curve to draw
		logger.Warnf("No DET chart for %v: %v", name, err)
	}
	summary := evaluator.Summary()
	if err := os.WriteFile(name+"-summary.txt", []byte(summary.String()), 0644); err != nil {
		return err
	}
	logger.Infof("%v: log-average miss rate %.4f over %v images", name, summary.LogAverageMissRate, summary.Images)
	return nil
}
