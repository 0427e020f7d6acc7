// Package signal turns buy/sell condition expressions into per-row boolean
// series over a merged price/factor table.
//
// 表达式引用列名（如 收盘_不复权、5日均线），支持算术、比较和布尔运算。
// 因子列名可能以数字开头（5日均线），不是合法标识符，所以编译前先把已知
// 列名替换成内部占位符，再用占位符环境逐行求值。
package signal

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"stocklab/table"
)

// Evaluator 对一张表求买卖信号序列
type Evaluator struct {
	buy  *compiled
	sell *compiled
}

type compiled struct {
	src     string
	program *vm.Program
	aliases map[string]string // 列名 -> 占位符
}

// Compile 针对给定表的列集合编译买卖条件。
// 引用了表中不存在的列会在编译或求值时报错，调用方据此跳过该股票。
func Compile(t *table.Table, buyExpr, sellExpr string) (*Evaluator, error) {
	buy, err := compileOne(t, buyExpr)
	if err != nil {
		return nil, fmt.Errorf("buy condition: %w", err)
	}
	sell, err := compileOne(t, sellExpr)
	if err != nil {
		return nil, fmt.Errorf("sell condition: %w", err)
	}
	return &Evaluator{buy: buy, sell: sell}, nil
}

func compileOne(t *table.Table, src string) (*compiled, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("empty expression")
	}

	// 列名按长度降序替换，避免短名吃掉长名的一部分
	cols := append([]string(nil), t.Columns()...)
	cols = append(cols, t.KeyColumn())
	sort.Slice(cols, func(i, j int) bool { return len(cols[i]) > len(cols[j]) })

	aliases := make(map[string]string, len(cols))
	pairs := make([]string, 0, len(cols)*2)
	for i, c := range cols {
		alias := fmt.Sprintf("__col%d", i)
		aliases[c] = alias
		pairs = append(pairs, c, alias)
	}
	rewritten := strings.NewReplacer(pairs...).Replace(src)

	// 用占位符环境编译，引用了表中不存在的列在这里就报 unknown name，
	// 不会漏到求值阶段被当成 nil 吞掉
	checkEnv := make(map[string]any, len(aliases))
	for c, alias := range aliases {
		if c == t.KeyColumn() {
			checkEnv[alias] = ""
		} else {
			checkEnv[alias] = float64(0)
		}
	}
	program, err := expr.Compile(rewritten, expr.Env(checkEnv))
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	return &compiled{src: src, program: program, aliases: aliases}, nil
}

// Series 在表的每一行上求值，返回与行对齐的买卖布尔序列
func (e *Evaluator) Series(t *table.Table) (buy, sell []bool, err error) {
	buy, err = e.buy.series(t)
	if err != nil {
		return nil, nil, fmt.Errorf("buy condition: %w", err)
	}
	sell, err = e.sell.series(t)
	if err != nil {
		return nil, nil, fmt.Errorf("sell condition: %w", err)
	}
	return buy, sell, nil
}

func (c *compiled) series(t *table.Table) ([]bool, error) {
	out := make([]bool, t.Len())
	env := make(map[string]any, len(c.aliases))
	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		for name, alias := range c.aliases {
			env[alias] = row[name]
		}
		v, err := expr.Run(c.program, env)
		if err != nil {
			return nil, fmt.Errorf("eval %q row %d: %w", c.src, i, err)
		}
		out[i] = truthy(v)
	}
	return out, nil
}

// truthy 非布尔结果按真值强制转换（数值非零、字符串非空）
func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case float32:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case string:
		return x != ""
	case nil:
		return false
	default:
		return true
	}
}
