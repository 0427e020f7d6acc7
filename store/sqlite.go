package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // 纯 Go SQLite 驱动

	"stocklab/table"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore 单文件 SQLite 实现。建表/加列等 schema 变更内部串行化，
// 满足并发首写同一张表时的前置条件。
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // schema 变更锁
}

// Open 打开（或创建）path 处的数据库
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开数据库 %s: %w", path, err)
	}
	// modernc 驱动下写并发走单连接，避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

// Close 关闭底层连接
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// columnsOf 返回表的列名和主键列，表不存在时列表为空
func (s *SQLiteStore) columnsOf(ctx context.Context, tbl string) (cols []string, pk string, err error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(tbl)))
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pkFlag  int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pkFlag); err != nil {
			return nil, "", err
		}
		cols = append(cols, name)
		if pkFlag == 1 {
			pk = name
		}
	}
	return cols, pk, rows.Err()
}

// ensureTable 缺表建表、缺列加列。colType 为数据列类型（REAL 或 TEXT）。
func (s *SQLiteStore) ensureTable(ctx context.Context, tbl, keyCol string, dataCols []string, colType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, _, err := s.columnsOf(ctx, tbl)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s TEXT PRIMARY KEY)", quoteIdent(tbl), quoteIdent(keyCol))
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("建表 %s: %w", tbl, err)
		}
		existing = []string{keyCol}
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c] = true
	}
	for _, c := range dataCols {
		if have[c] {
			continue
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(tbl), quoteIdent(c), colType)
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("加列 %s.%s: %w", tbl, c, err)
		}
	}
	return nil
}

// upsertSQL 生成 INSERT ... ON CONFLICT(key) DO UPDATE 语句
func upsertSQL(tbl, keyCol string, dataCols []string) string {
	cols := make([]string, 0, len(dataCols)+1)
	cols = append(cols, quoteIdent(keyCol))
	sets := make([]string, 0, len(dataCols))
	for _, c := range dataCols {
		cols = append(cols, quoteIdent(c))
		sets = append(sets, fmt.Sprintf("%s=excluded.%s", quoteIdent(c), quoteIdent(c)))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		quoteIdent(tbl), strings.Join(cols, ","), placeholders, quoteIdent(keyCol), strings.Join(sets, ","))
	if len(sets) == 0 {
		stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO NOTHING",
			quoteIdent(tbl), strings.Join(cols, ","), placeholders, quoteIdent(keyCol))
	}
	return stmt
}

// Upsert 按主键写入数值表。NaN 落库为 NULL。
func (s *SQLiteStore) Upsert(ctx context.Context, tbl string, frame *table.Table) error {
	if frame == nil || frame.Len() == 0 {
		return nil
	}
	cols := frame.Columns()
	if err := s.ensureTable(ctx, tbl, frame.KeyColumn(), cols, "REAL"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL(tbl, frame.KeyColumn(), cols))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, key := range frame.Keys() {
		args := make([]any, 0, len(cols)+1)
		args = append(args, key)
		for _, c := range cols {
			v, _ := frame.Value(c, i)
			if math.IsNaN(v) {
				args = append(args, nil)
			} else {
				args = append(args, v)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("写入 %s 行 %s: %w", tbl, key, err)
		}
	}
	return tx.Commit()
}

// UpsertRows 按 keyCol 写入字符串行（配置、交易流水等）
func (s *SQLiteStore) UpsertRows(ctx context.Context, tbl, keyCol string, rows []map[string]string) error {
	if len(rows) == 0 {
		return nil
	}
	colSet := make(map[string]bool)
	for _, row := range rows {
		for c := range row {
			if c != keyCol {
				colSet[c] = true
			}
		}
	}
	cols := make([]string, 0, len(colSet))
	for c := range colSet {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	if err := s.ensureTable(ctx, tbl, keyCol, cols, "TEXT"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL(tbl, keyCol, cols))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		key, ok := row[keyCol]
		if !ok || key == "" {
			continue // 缺主键的行跳过
		}
		args := make([]any, 0, len(cols)+1)
		args = append(args, key)
		for _, c := range cols {
			if v, ok := row[c]; ok {
				args = append(args, v)
			} else {
				args = append(args, nil)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("写入 %s 行 %s: %w", tbl, key, err)
		}
	}
	return tx.Commit()
}

// ReadRange 读取数值序列，按主键升序
func (s *SQLiteStore) ReadRange(ctx context.Context, tbl, keyCol, start, end string, columns []string) (*table.Table, error) {
	dataCols := make([]string, 0, len(columns))
	for _, c := range columns {
		if c != keyCol {
			dataCols = append(dataCols, c)
		}
	}
	if len(dataCols) == 0 {
		all, _, err := s.columnsOf(ctx, tbl)
		if err != nil {
			return nil, err
		}
		if len(all) == 0 {
			return nil, fmt.Errorf("表 %s 不存在", tbl)
		}
		for _, c := range all {
			if c != keyCol {
				dataCols = append(dataCols, c)
			}
		}
	}

	sel := make([]string, 0, len(dataCols)+1)
	sel = append(sel, quoteIdent(keyCol))
	for _, c := range dataCols {
		sel = append(sel, quoteIdent(c))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(sel, ","), quoteIdent(tbl))
	var (
		conds []string
		args  []any
	)
	if start != "" {
		conds = append(conds, fmt.Sprintf("%s >= ?", quoteIdent(keyCol)))
		args = append(args, start)
	}
	if end != "" {
		conds = append(conds, fmt.Sprintf("%s <= ?", quoteIdent(keyCol)))
		args = append(args, end)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s", quoteIdent(keyCol))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("读取 %s: %w", tbl, err)
	}
	defer rows.Close()

	out := table.New(keyCol)
	for rows.Next() {
		var key string
		vals := make([]sql.NullFloat64, len(dataCols))
		dest := make([]any, 0, len(dataCols)+1)
		dest = append(dest, &key)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		rowVals := make(map[string]float64, len(dataCols))
		for i, c := range dataCols {
			if vals[i].Valid {
				rowVals[c] = vals[i].Float64
			} else {
				rowVals[c] = math.NaN()
			}
		}
		if err := out.AppendRow(key, rowVals); err != nil {
			return nil, fmt.Errorf("表 %s: %w", tbl, err)
		}
	}
	return out, rows.Err()
}

// ReadAll 读取整张数值表，主键取 PRIMARY KEY 列
func (s *SQLiteStore) ReadAll(ctx context.Context, tbl string) (*table.Table, error) {
	_, pk, err := s.columnsOf(ctx, tbl)
	if err != nil {
		return nil, err
	}
	if pk == "" {
		return nil, fmt.Errorf("表 %s 不存在或没有主键", tbl)
	}
	return s.ReadRange(ctx, tbl, pk, "", "", nil)
}

// ReadRows 以字符串形式读取整张表
func (s *SQLiteStore) ReadRows(ctx context.Context, tbl string) ([]map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", quoteIdent(tbl)))
	if err != nil {
		return nil, fmt.Errorf("读取 %s: %w", tbl, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]string
	for rows.Next() {
		raw := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(map[string]string, len(cols))
		for i, c := range cols {
			row[c] = stringify(raw[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return fmt.Sprintf("%d", x)
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
