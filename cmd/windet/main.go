package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/windet/pkg/config"
	"github.com/cyclopcam/windet/pkg/imgsrc"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("windet", "Train and evaluate sliding window object detectors")

	trainCmd := parser.NewCommand("train", "Train one detector per cross validation fold")
	trainDir := trainCmd.String("d", "dir", &argparse.Options{Help: "Dataset directory", Required: true})
	trainSet := trainCmd.String("s", "set", &argparse.Options{Help: "Image set file, relative to the dataset directory", Required: true})
	trainFolds := trainCmd.Int("k", "folds", &argparse.Options{Help: "Number of cross validation folds", Default: 1})
	trainConfig := trainCmd.String("c", "config", &argparse.Options{Help: "Training config file (yaml)", Required: false})
	trainOutput := trainCmd.String("o", "output", &argparse.Options{Help: "Model filename prefix", Required: true})

	testCmd := parser.NewCommand("test", "Evaluate the detectors produced by 'train'")
	testDir := testCmd.String("d", "dir", &argparse.Options{Help: "Dataset directory", Required: true})
	testSet := testCmd.String("s", "set", &argparse.Options{Help: "Image set file, relative to the dataset directory", Required: true})
	testFolds := testCmd.Int("k", "folds", &argparse.Options{Help: "Number of cross validation folds", Default: 1})
	testConfig := testCmd.String("c", "config", &argparse.Options{Help: "Test config file (yaml)", Required: false})
	testModel := testCmd.String("m", "model", &argparse.Options{Help: "Model filename prefix", Required: true})

	showCmd := parser.NewCommand("show", "Draw detections onto an image")
	showInput := showCmd.String("i", "input", &argparse.Options{Help: "Input image", Required: true})
	showModel := showCmd.String("m", "model", &argparse.Options{Help: "Model file", Required: true})
	showConfig := showCmd.String("c", "config", &argparse.Options{Help: "Test config file (yaml)", Required: false})
	showOutput := showCmd.String("o", "output", &argparse.Options{Help: "Output JPEG file", Required: true})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, _ := logs.NewLog()

	switch {
	case trainCmd.Happened():
		cfg := loadConfig(logger, *trainConfig)
		images := loadDataset(logger, *trainDir, *trainSet)
		err = runTrain(logger, cfg, images, *trainFolds, *trainOutput)
	case testCmd.Happened():
		cfg := loadConfig(logger, *testConfig)
		images := loadDataset(logger, *testDir, *testSet)
		err = runTest(logger, cfg, images, *testFolds, *testModel)
	case showCmd.Happened():
		cfg := loadConfig(logger, *showConfig)
		err = runShow(logger, cfg, *showInput, *showModel, *showOutput)
	}
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func loadConfig(logger logs.Log, filename string) *config.Config {
	if filename == "" {
		return config.Default()
	}
	cfg, err := config.Load(filename)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	return cfg
}

// loadDataset reads the whole image set into memory, so that it can be split into folds.
// The annotations are left as they are in the files. Their aspect ratio is adjusted per fold,
// to the geometry of the model being trained or tested.
func loadDataset(logger logs.Log, dir, imageSet string) *imgsrc.ListSource {
	src, err := imgsrc.NewDirectorySource(dir, imageSet)
	check(err)
	images, err := imgsrc.Collect(src)
	if err != nil {
		logger.Errorf("Error reading image set %v: %v", imageSet, err)
		os.Exit(1)
	}
	logger.Infof("Loaded %v images from %v", len(images), imageSet)
	return imgsrc.NewListSource(images)
}

// foldName is the filename prefix of the given fold
func foldName(prefix string, numFolds, fold int) string {
	if numFolds <= 1 {
		return prefix
	}
	return fmt.Sprintf("%v-fold%v", prefix, fold)
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func fileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}
