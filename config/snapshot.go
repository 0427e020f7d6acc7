package config

import (
	"context"
	"fmt"

	"stocklab/store"
)

// SystemTable system 库里的运行时配置表
const SystemTable = "system"

// SystemKeyColumn 配置表主键列
const SystemKeyColumn = "config_name"

// Snapshot system 表的一次性读取结果（config_name -> value）。
// 每次请求重新加载，改配置不用重启服务。
type Snapshot map[string]string

// LoadSnapshot 从 system 库读取全部运行时配置。
// 表还不存在时返回空快照，调用方落回默认值。
func LoadSnapshot(ctx context.Context, st store.Store) (Snapshot, error) {
	rows, err := st.ReadRows(ctx, SystemTable)
	if err != nil {
		return Snapshot{}, nil
	}
	snap := make(Snapshot, len(rows))
	for _, row := range rows {
		name := row[SystemKeyColumn]
		if name == "" {
			continue
		}
		snap[name] = row["value"]
	}
	return snap, nil
}

// SaveEntries 把配置项写回 system 表
func SaveEntries(ctx context.Context, st store.Store, entries map[string]string) error {
	rows := make([]map[string]string, 0, len(entries))
	for name, value := range entries {
		if name == "" {
			return fmt.Errorf("配置项名称不能为空")
		}
		rows = append(rows, map[string]string{
			SystemKeyColumn: name,
			"value":         value,
		})
	}
	return st.UpsertRows(ctx, SystemTable, SystemKeyColumn, rows)
}

// Get 读取一个配置项，缺失返回空串
func (s Snapshot) Get(name string) string {
	return s[name]
}

// StockList 解析 stock_list 配置项，未配置返回 nil
func (s Snapshot) StockList() []string {
	v := s["stock_list"]
	if v == "" {
		return nil
	}
	return SplitList(v)
}
