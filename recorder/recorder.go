// 逐步结果记录：键集合在创建时固定，每次记录必须恰好提供这些键
package recorder

import (
	"errors"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/ptlsim/entity"
)

var (
	ErrKeyMismatch = errors.New("recorder: keys mismatch")
	ErrNoKeys      = errors.New("recorder: no keys")
	ErrClosed      = errors.New("recorder: closed")
)

// checkKeys 检查记录的键与固定键完全一致
func checkKeys(keys []string, data map[string]float64) error {
	missing := lo.Filter(keys, func(k string, _ int) bool {
		_, ok := data[k]
		return !ok
	})
	extra := lo.Filter(lo.Keys(data), func(k string, _ int) bool {
		return !slices.Contains(keys, k)
	})
	if len(missing) > 0 || len(extra) > 0 {
		slices.Sort(extra)
		return fmt.Errorf("%w: missing %v, unexpected %v", ErrKeyMismatch, missing, extra)
	}
	return nil
}

func checkNewKeys(keys []string) error {
	if len(keys) == 0 {
		return ErrNoKeys
	}
	if dup := lo.FindDuplicates(keys); len(dup) > 0 {
		return fmt.Errorf("recorder: duplicated keys %v", dup)
	}
	return nil
}

// Multi 同时写入多个记录器，键以第一个为准
type Multi struct {
	keys      []string
	recorders []entity.IRecorder
}

var _ entity.IRecorder = (*Multi)(nil)

// NewMulti 组合多个键集合相同的记录器
func NewMulti(recorders ...entity.IRecorder) (*Multi, error) {
	if len(recorders) == 0 {
		return nil, errors.New("recorder: no recorders")
	}
	keys := recorders[0].Keys()
	for _, r := range recorders[1:] {
		if !slices.Equal(keys, r.Keys()) {
			return nil, fmt.Errorf("%w: %v vs %v", ErrKeyMismatch, keys, r.Keys())
		}
	}
	return &Multi{keys: keys, recorders: recorders}, nil
}

func (m *Multi) Keys() []string {
	return slices.Clone(m.keys)
}

func (m *Multi) Log(data map[string]float64) error {
	if err := checkKeys(m.keys, data); err != nil {
		return err
	}
	for _, r := range m.recorders {
		if err := r.Log(data); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) Close() error {
	var errs []error
	for _, r := range m.recorders {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}

// Memory 内存记录器，保存全部记录
type Memory struct {
	keys []string
	Rows []map[string]float64
}

var _ entity.IRecorder = (*Memory)(nil)

func NewMemory(keys []string) (*Memory, error) {
	if err := checkNewKeys(keys); err != nil {
		return nil, err
	}
	return &Memory{keys: slices.Clone(keys)}, nil
}

func (m *Memory) Keys() []string {
	return slices.Clone(m.keys)
}

func (m *Memory) Log(data map[string]float64) error {
	if err := checkKeys(m.keys, data); err != nil {
		return err
	}
	m.Rows = append(m.Rows, lo.Assign(data))
	return nil
}

func (m *Memory) Close() error {
	return nil
}
