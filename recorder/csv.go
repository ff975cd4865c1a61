package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/tsinghua-fib-lab/ptlsim/entity"
)

// CSVDelimiter 列分隔符
const CSVDelimiter = ';'

// CSV CSV文件记录器，首行为表头
type CSV struct {
	path   string
	keys   []string
	file   *os.File
	writer *csv.Writer
	row    []string
}

var _ entity.IRecorder = (*CSV)(nil)

// NewCSV 创建CSV记录器，必要时创建目录并写出表头
func NewCSV(path string, keys []string) (*CSV, error) {
	if err := checkNewKeys(keys); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	w := csv.NewWriter(file)
	w.Comma = CSVDelimiter
	if err := w.Write(keys); err != nil {
		file.Close()
		return nil, fmt.Errorf("recorder: write header: %w", err)
	}
	return &CSV{
		path:   path,
		keys:   slices.Clone(keys),
		file:   file,
		writer: w,
		row:    make([]string, len(keys)),
	}, nil
}

func (r *CSV) Keys() []string {
	return slices.Clone(r.keys)
}

func (r *CSV) Log(data map[string]float64) error {
	if r.file == nil {
		return ErrClosed
	}
	if err := checkKeys(r.keys, data); err != nil {
		return err
	}
	for i, k := range r.keys {
		r.row[i] = strconv.FormatFloat(data[k], 'g', -1, 64)
	}
	if err := r.writer.Write(r.row); err != nil {
		return fmt.Errorf("recorder: write %s: %w", r.path, err)
	}
	return nil
}

func (r *CSV) Close() error {
	if r.file == nil {
		return nil
	}
	r.writer.Flush()
	err := r.writer.Error()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	r.file = nil
	log.Debugf("csv %s closed", r.path)
	return err
}
