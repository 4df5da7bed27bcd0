package evaluate

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// WriteData writes the state of the evaluator in a text format:
//
//	Threshold <float>
//	Images <int>
//	Positives <int>
//	Time <int milliseconds>
//	Scores
//	<score> <0|1>
//	...
//
// The scores are in descending order, and 1 marks a true positive.
func (e *Evaluator) WriteData(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Threshold %v\n", formatFloat(e.Threshold))
	fmt.Fprintf(bw, "Images %v\n", e.images)
	fmt.Fprintf(bw, "Positives %v\n", e.positives)
	fmt.Fprintf(bw, "Time %v\n", e.time.Total.Milliseconds())
	fmt.Fprintf(bw, "Scores\n")
	for _, s := range e.scores {
		tp := 0
		if s.TruePositive {
			tp = 1
		}
		fmt.Fprintf(bw, "%v %v\n", formatFloat(s.Score), tp)
	}
	return bw.Flush()
}

// ReadData reads the format written by WriteData
func ReadData(r io.Reader) (*Evaluator, error) {
	e := &Evaluator{OverlapThreshold: DefaultOverlapThreshold}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	header := func(key string) (string, error) {
		if !scanner.Scan() {
			return "", fmt.Errorf("Expected '%v' on line %v", key, lineNo+1)
		}
		lineNo++
		name, value, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		if name != key {
			return "", fmt.Errorf("Expected '%v' on line %v, but found '%v'", key, lineNo, name)
		}
		return strings.TrimSpace(value), nil
	}
	headerInt := func(key string) (int64, error) {
		v, err := header(key)
		if err != nil {
			return 0, err
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("Invalid %v on line %v: %w", key, lineNo, err)
		}
		return n, nil
	}

	v, err := header("Threshold")
	if err != nil {
		return nil, err
	}
	if e.Threshold, err = strconv.ParseFloat(v, 64); err != nil {
		return nil, fmt.Errorf("Invalid Threshold: %w", err)
	}
	images, err := headerInt("Images")
	if err != nil {
		return nil, err
	}
	positives, err := headerInt("Positives")
	if err != nil {
		return nil, err
	}
	ms, err := headerInt("Time")
	if err != nil {
		return nil, err
	}
	if _, err := header("Scores"); err != nil {
		return nil, err
	}
	e.images = int(images)
	e.positives = int(positives)
	e.time.Samples = images
	e.time.Total = time.Duration(ms) * time.Millisecond

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("Expected '<score> <0|1>' on line %v", lineNo)
		}
		score, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("Invalid score on line %v: %w", lineNo, err)
		}
		if fields[1] != "0" && fields[1] != "1" {
			return nil, fmt.Errorf("Invalid true positive flag '%v' on line %v", fields[1], lineNo)
		}
		e.scores = append(e.scores, ClassifiedScore{Score: score, TruePositive: fields[1] == "1"})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !IsSorted(e.scores) {
		return nil, fmt.Errorf("Scores are not in descending order")
	}
	return e, nil
}

func (e *Evaluator) SaveFile(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := e.WriteData(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func LoadFile(filename string) (*Evaluator, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	e, err := ReadData(f)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	return e, nil
}
