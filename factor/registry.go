// Package factor computes derived indicator series (均线、布林带、量比等)
// per instrument and writes them into the factor store. Factors are looked
// up by name in a registry and invoked through a small parameter binder
// that resolves a caller-supplied argument string against the factor's
// declared parameters.
package factor

import (
	"fmt"
	"sort"

	"stocklab/table"
)

// Param 因子函数的一个形参。Default 为 nil 表示必填。
type Param struct {
	Name    string `json:"name"`
	Default any    `json:"default,omitempty"`
}

// Descriptor 注册表中的一个因子
type Descriptor struct {
	Name     string  `json:"factor_name"` // 注册名（请求里的 factor_name）
	Function string  `json:"factor"`      // 计算函数名（请求里的 factor）
	Params   []Param `json:"params"`
	Call     func(args map[string]any) (*table.Table, error) `json:"-"`
}

// Invoke 把绑定结果展开成按名实参并调用因子函数
func (d Descriptor) Invoke(b Bound) (*table.Table, error) {
	if len(b.Args) > len(d.Params) {
		return nil, fmt.Errorf("因子 %s 接收 %d 个参数，传入 %d 个", d.Name, len(d.Params), len(b.Args))
	}
	final := make(map[string]any, len(d.Params))
	for i, v := range b.Args {
		final[d.Params[i].Name] = v
	}
	for k, v := range b.Kwargs {
		declared := false
		for _, p := range d.Params {
			if p.Name == k {
				declared = true
				break
			}
		}
		if !declared {
			return nil, fmt.Errorf("因子 %s 没有参数 %s", d.Name, k)
		}
		if _, dup := final[k]; dup {
			return nil, fmt.Errorf("参数 %s 重复赋值", k)
		}
		final[k] = v
	}
	for _, p := range d.Params {
		if _, ok := final[p.Name]; ok {
			continue
		}
		if p.Default == nil {
			return nil, fmt.Errorf("缺少必填参数 %s", p.Name)
		}
		final[p.Name] = p.Default
	}
	return d.Call(final)
}

// Registry 因子注册表
type Registry struct {
	factors map[string]Descriptor
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{factors: make(map[string]Descriptor)}
}

// Register 注册（或覆盖）一个因子
func (r *Registry) Register(d Descriptor) {
	r.factors[d.Name] = d
}

// Get 按注册名查找因子
func (r *Registry) Get(name string) (Descriptor, bool) {
	d, ok := r.factors[name]
	return d, ok
}

// List 返回全部因子，按名称排序
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.factors))
	for _, d := range r.factors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
