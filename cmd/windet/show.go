package main

import (
	"fmt"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/windet/pkg/config"
	"github.com/cyclopcam/windet/pkg/detect"
	"github.com/cyclopcam/windet/pkg/imgsrc"
	"github.com/cyclopcam/windet/pkg/train"
	"github.com/fogleman/gg"
)

// runShow runs a model over a single image, and writes a copy of the image with the detections drawn on it
func runShow(logger logs.Log, cfg *config.Config, input, modelFile, output string) error {
	model, err := train.LoadModelFile(modelFile)
	if err != nil {
		return err
	}
	detector, err := model.NewDetector(cfg.DetectorParams(model.Geometry()))
	if err != nil {
		return err
	}
	img, err := imgsrc.ReadImage(input)
	if err != nil {
		return err
	}
	detections := detector.DetectScored(img)
	logger.Infof("%v detections in %v", len(detections), input)

	out := drawDetections(img, detections)
	return out.WriteJPEG(output, cimg.MakeCompressParams(cimg.Sampling444, 95, 0), 0644)
}

func drawDetections(img *cimg.Image, detections []detect.Detection) *cimg.Image {
	dc := gg.NewContextForImage(imgsrc.ToNRGBA(img))
	dc.SetLineWidth(2)
	for _, d := range detections {
		b := d.Box
		dc.SetRGB(0, 1, 0)
		dc.DrawRectangle(float64(b.X), float64(b.Y), float64(b.Width), float64(b.Height))
		dc.Stroke()
		dc.SetRGB(1, 1, 0)
		dc.DrawString(fmt.Sprintf("%.2f", d.Score), float64(b.X)+2, float64(b.Y)-3)
	}
	return imgsrc.FromImage(dc.Image())
}
