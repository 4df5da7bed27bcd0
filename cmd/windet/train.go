package main

import (
	"fmt"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/windet/pkg/config"
	"github.com/cyclopcam/windet/pkg/imgsrc"
	"github.com/cyclopcam/windet/pkg/train"
)

// runTrain trains one model per fold. Folds whose model file already exists are skipped,
// so that an interrupted cross validation run can be resumed.
func runTrain(logger logs.Log, cfg *config.Config, images *imgsrc.ListSource, numFolds int, prefix string) error {
	descriptor, err := cfg.Descriptor()
	if err != nil {
		return err
	}
	for fold := 0; fold < max(numFolds, 1); fold++ {
		modelFile := foldName(prefix, numFolds, fold) + ".json"
		if fileExists(modelFile) {
			logger.Infof("Skipping fold %v, because %v already exists", fold, modelFile)
			continue
		}
		trainSet, _ := images.Fold(numFolds, fold)
		logger.Infof("Training fold %v on %v images", fold, trainSet.Len())

		trainer, err := train.NewTrainer(logger, cfg.Geometry(), descriptor, cfg.TrainPyramidParams(), cfg.TrainParams())
		if err != nil {
			return err
		}
		src := imgsrc.NewAspectRatioSource(trainSet, cfg.Geometry().AspectRatio())
		model, err := trainer.Train(src, newRand(cfg.Training.Seed+int64(fold)))
		if err != nil {
			return fmt.Errorf("Training fold %v failed: %w", fold, err)
		}
		logger.Infof("Fold %v: %v positives, %v negatives", fold, len(trainer.Positives()), len(trainer.Negatives()))
		if err := model.SaveFile(modelFile); err != nil {
			return err
		}
		logger.Infof("Saved %v", modelFile)
	}
	return nil
}
