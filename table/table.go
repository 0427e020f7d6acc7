// Package table provides an ordered, date-keyed frame of named numeric
// columns. It is the in-memory shape for price history, factor series and
// the merged price/factor frames the backtester consumes.
package table

import (
	"fmt"
	"math"
)

// DateColumn 日期列名（所有时间序列表的主键列）
const DateColumn = "日期"

// Table 按日期升序排列的数值表，列名动态
type Table struct {
	key  string
	keys []string
	cols []string
	data map[string][]float64
}

// New 创建一个以 keyCol 为主键的空表
func New(keyCol string) *Table {
	return &Table{
		key:  keyCol,
		data: make(map[string][]float64),
	}
}

// KeyColumn 返回主键列名
func (t *Table) KeyColumn() string { return t.key }

// Len 返回行数
func (t *Table) Len() int { return len(t.keys) }

// Keys 返回主键值序列（日期或代码）
func (t *Table) Keys() []string { return t.keys }

// Columns 返回数据列名（不含主键列），按添加顺序
func (t *Table) Columns() []string { return t.cols }

// HasColumn 判断数据列是否存在
func (t *Table) HasColumn(name string) bool {
	_, ok := t.data[name]
	return ok
}

// Column 返回一个数据列的值序列
func (t *Table) Column(name string) ([]float64, bool) {
	vals, ok := t.data[name]
	return vals, ok
}

// Value 返回第 i 行 name 列的值
func (t *Table) Value(name string, i int) (float64, bool) {
	vals, ok := t.data[name]
	if !ok || i < 0 || i >= len(vals) {
		return 0, false
	}
	return vals[i], true
}

// AppendRow 追加一行。主键必须严格递增，保证日期唯一且升序。
// values 中未出现的已有列补 NaN，新列此前的行也补 NaN。
func (t *Table) AppendRow(key string, values map[string]float64) error {
	if n := len(t.keys); n > 0 && key <= t.keys[n-1] {
		return fmt.Errorf("key %q out of order (last %q)", key, t.keys[n-1])
	}
	for name := range values {
		if _, ok := t.data[name]; !ok {
			back := make([]float64, len(t.keys))
			for i := range back {
				back[i] = math.NaN()
			}
			t.data[name] = back
			t.cols = append(t.cols, name)
		}
	}
	t.keys = append(t.keys, key)
	for _, name := range t.cols {
		v, ok := values[name]
		if !ok {
			v = math.NaN()
		}
		t.data[name] = append(t.data[name], v)
	}
	return nil
}

// AddColumn 整列写入。长度必须与行数一致；已存在则覆盖。
func (t *Table) AddColumn(name string, vals []float64) error {
	if len(vals) != len(t.keys) {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(vals), len(t.keys))
	}
	if _, ok := t.data[name]; !ok {
		t.cols = append(t.cols, name)
	}
	t.data[name] = append([]float64(nil), vals...)
	return nil
}

// Row 返回第 i 行的取值环境（列名 -> 值），供信号表达式求值使用
func (t *Table) Row(i int) map[string]any {
	env := make(map[string]any, len(t.cols)+1)
	env[t.key] = t.keys[i]
	for _, name := range t.cols {
		env[name] = t.data[name][i]
	}
	return env
}

// MergeInner 与另一张表按主键做内连接，两表均须升序。
// 列名冲突时以右表为准（与原始数据合并语义一致，实际不应出现）。
func (t *Table) MergeInner(o *Table) *Table {
	out := New(t.key)
	i, j := 0, 0
	for i < len(t.keys) && j < len(o.keys) {
		switch {
		case t.keys[i] < o.keys[j]:
			i++
		case t.keys[i] > o.keys[j]:
			j++
		default:
			row := make(map[string]float64, len(t.cols)+len(o.cols))
			for _, c := range t.cols {
				row[c] = t.data[c][i]
			}
			for _, c := range o.cols {
				row[c] = o.data[c][j]
			}
			_ = out.AppendRow(t.keys[i], row)
			i++
			j++
		}
	}
	return out
}

// Slice 截取 [start, end] 闭区间内的行（ISO 日期字符串可直接比较）
func (t *Table) Slice(start, end string) *Table {
	lo := 0
	for lo < len(t.keys) && start != "" && t.keys[lo] < start {
		lo++
	}
	hi := len(t.keys)
	for hi > lo && end != "" && t.keys[hi-1] > end {
		hi--
	}
	return t.view(lo, hi)
}

// DropEnds 去掉前 first 行和后 last 行
func (t *Table) DropEnds(first, last int) *Table {
	if first < 0 {
		first = 0
	}
	if last < 0 {
		last = 0
	}
	lo := first
	hi := len(t.keys) - last
	if lo > len(t.keys) {
		lo = len(t.keys)
	}
	if hi < lo {
		hi = lo
	}
	return t.view(lo, hi)
}

func (t *Table) view(lo, hi int) *Table {
	out := New(t.key)
	out.keys = append(out.keys, t.keys[lo:hi]...)
	out.cols = append(out.cols, t.cols...)
	for _, c := range t.cols {
		out.data[c] = append([]float64(nil), t.data[c][lo:hi]...)
	}
	return out
}
