// Package store defines the tabular time-series store the simulation and
// factor pipelines read from and write to, backed by SQLite.
//
// 表有两种形态：数值时间序列表（日期主键 + 动态数值列，如行情和因子），
// 和字符串表（如 system 配置表、交易流水）。Upsert 按主键幂等写入，
// 缺表建表、缺列加列，对已有的其它列和行无破坏。
package store

import (
	"context"

	"stocklab/table"
)

// Store 抽象表格存储
type Store interface {
	// ReadRange 读取 [start, end] 闭区间内按主键升序的数值序列。
	// start/end 为空表示不限。columns 为空表示全部数据列。
	ReadRange(ctx context.Context, tbl, keyCol, start, end string, columns []string) (*table.Table, error)

	// ReadAll 读取整张数值表，主键取表的 PRIMARY KEY 列
	ReadAll(ctx context.Context, tbl string) (*table.Table, error)

	// Upsert 按 frame 的主键列幂等写入数值表
	Upsert(ctx context.Context, tbl string, frame *table.Table) error

	// ReadRows 以字符串形式读取整张表（配置、流水等非数值表）
	ReadRows(ctx context.Context, tbl string) ([]map[string]string, error)

	// UpsertRows 按 keyCol 幂等写入字符串行
	UpsertRows(ctx context.Context, tbl, keyCol string, rows []map[string]string) error

	Close() error
}
