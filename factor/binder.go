package factor

import (
	"fmt"
	"strconv"
	"strings"

	"stocklab/table"
)

// Bound 参数绑定结果：位置实参 + 关键字实参
type Bound struct {
	Args   []any
	Kwargs map[string]any
}

// BindParameters 解析因子参数串（如 "df, column, window=10"）。
//
// 逗号分隔的每个 token 按以下规则处理：
//   - 带 "=" 的是关键字参数，纯数字值转 int，其余去引号后按字符串处理
//   - "df" 绑定为读入的行情表
//   - "column" 优先取请求里的 column 字段，否则在 df 的非日期列中自动
//     识别，恰好一列才成立
//   - 其它裸 token 先查请求字段，再退回因子声明的默认值，都没有则报错
func BindParameters(params string, df *table.Table, desc Descriptor, reqValues map[string]any) (Bound, error) {
	out := Bound{Kwargs: make(map[string]any)}

	for _, raw := range strings.Split(params, ",") {
		token := strings.TrimSpace(raw)
		if token == "" {
			continue
		}

		if k, v, ok := strings.Cut(token, "="); ok {
			key := strings.TrimSpace(k)
			val := strings.TrimSpace(v)
			if n, err := strconv.Atoi(val); err == nil && isDigits(val) {
				out.Kwargs[key] = n
			} else {
				out.Kwargs[key] = strings.Trim(val, `'"`)
			}
			continue
		}

		switch token {
		case "df":
			out.Args = append(out.Args, df)
		case "column":
			col, err := resolveColumn(df, reqValues)
			if err != nil {
				return Bound{}, err
			}
			out.Args = append(out.Args, col)
		default:
			if v, ok := reqValues[token]; ok && v != nil && v != "" {
				out.Args = append(out.Args, v)
				continue
			}
			if def := defaultOf(desc, token); def != nil {
				out.Args = append(out.Args, def)
				continue
			}
			return Bound{}, fmt.Errorf("参数 %s 没有取值也没有默认值", token)
		}
	}
	return out, nil
}

// resolveColumn 确定因子作用的列
func resolveColumn(df *table.Table, reqValues map[string]any) (string, error) {
	if v, ok := reqValues["column"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s, nil
		}
	}
	var candidates []string
	for _, c := range df.Columns() {
		if c != table.DateColumn {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	return "", fmt.Errorf("无法自动确定 column，候选列 %v", candidates)
}

func defaultOf(desc Descriptor, name string) any {
	for _, p := range desc.Params {
		if p.Name == name {
			return p.Default
		}
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
