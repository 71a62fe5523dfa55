package util

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-rknn/models/model"
	"github.com/nvr-ai/go-rknn/models/quant"
)

// LoadTensorFile reads a raw output tensor dump, as written by the RKNN
// runtime with want_float disabled, and wraps it with its calibration.
//
// Arguments:
//   - path: Path to the dump. The file holds exactly one byte per element.
//   - precision: The element type of the dump.
//   - calib: The zero point and scale reported for this output.
//   - shape: The tensor shape, e.g. 1, 80, 80, 255.
//
// Returns:
//   - *quant.Tensor: The loaded tensor.
//   - error: Error if reading fails or the size does not match the shape.
func LoadTensorFile(path string, precision model.Precision, calib quant.Calibration, shape ...int) (*quant.Tensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read tensor dump %s", path)
	}

	switch precision {
	case model.PrecisionINT8:
		values := make([]int8, len(data))
		for i, b := range data {
			values[i] = int8(b)
		}
		t, err := quant.FromInt8(values, calib, shape...)
		return t, errors.Wrapf(err, "load %s", path)
	case model.PrecisionUINT8:
		t, err := quant.FromUint8(data, calib, shape...)
		return t, errors.Wrapf(err, "load %s", path)
	default:
		return nil, errors.Wrapf(quant.ErrConfiguration, "unsupported precision %q", precision)
	}
}

// LoadLabels reads a label file with one class name per line, in class
// index order. Surrounding whitespace is trimmed and blank lines are skipped.
//
// Arguments:
//   - path: Path to the label file, e.g. coco_80_labels_list.txt.
//
// Returns:
//   - []string: The class names.
//   - error: Error if reading fails or the file has no labels.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open label file %s", path)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read label file %s", path)
	}
	if len(labels) == 0 {
		return nil, errors.Errorf("label file %s is empty", path)
	}
	return labels, nil
}
