package factor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"stocklab/event"
	"stocklab/pool"
	"stocklab/store"
	"stocklab/table"
)

// 因子计算默认读取的日期范围，覆盖全量历史
const (
	defaultStart = "1990-01-01"
	defaultEnd   = "2029-11-01"
)

// BatchRequest 一次批量因子计算请求
type BatchRequest struct {
	FactorName string         `json:"factor_name"` // 注册名
	Function   string         `json:"factor"`      // 计算函数名，须与注册的一致
	Parameters string         `json:"parameters"`  // 参数串，如 "df, column, moving_average_days"
	BaseData   []string       `json:"baseData"`    // 需要读取的行情列
	Start      string         `json:"start_date"`
	End        string         `json:"end_date"`
	Values     map[string]any `json:"-"` // 原始请求字段，裸参数按名查询用
}

// BatchResult 批量计算结果，Error 非空表示整批校验失败
type BatchResult struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Failed  []Skip `json:"failed,omitempty"`
}

// Skip 计算失败的股票及原因
type Skip struct {
	Instrument string `json:"stock"`
	Reason     string `json:"reason"`
}

// Batch 批量因子计算执行器
type Batch struct {
	Price    store.Store
	Factor   store.Store
	Registry *Registry
	Sink     event.Sink
	Log      zerolog.Logger
	Workers  int
}

// Compute 对每只股票并发计算因子并写入因子库。批级校验失败立即返回
// error 结果；单只股票失败推送 error 事件并继续，进度始终到 100%。
func (b *Batch) Compute(ctx context.Context, stocks []string, req *BatchRequest) BatchResult {
	if req.FactorName == "" || req.Function == "" || req.Parameters == "" || len(stocks) == 0 {
		return BatchResult{Error: "因子参数不完整。"}
	}
	desc, ok := b.Registry.Get(req.FactorName)
	if !ok {
		return BatchResult{Error: fmt.Sprintf("因子 %s 未注册。", req.FactorName)}
	}
	if desc.Function != req.Function {
		return BatchResult{Error: "因子函数不存在。"}
	}

	var failed []Skip
	job := func(ctx context.Context, code string) error {
		return b.runOne(ctx, desc, req, code)
	}
	pool.Run(ctx, stocks, b.Workers, job, func(res pool.Result, p pool.Progress) {
		if res.Err != nil {
			failed = append(failed, Skip{Instrument: res.ID, Reason: res.Err.Error()})
			b.Log.Warn().Str("stock", res.ID).Str("factor", req.FactorName).Err(res.Err).Msg("因子计算失败")
			if b.Sink != nil {
				b.Sink.Emit(event.EventError, map[string]string{
					"stock": res.ID,
					"error": res.Err.Error(),
				})
			}
		}
		if b.Sink != nil {
			b.Sink.Emit(event.EventProgress, p)
		}
	})

	return BatchResult{Message: "因子计算成功。", Failed: failed}
}

// runOne 读行情、绑定参数、计算并把结果并入该股票的因子表
func (b *Batch) runOne(ctx context.Context, desc Descriptor, req *BatchRequest, code string) error {
	start, end := req.Start, req.End
	if start == "" {
		start = defaultStart
	}
	if end == "" {
		end = defaultEnd
	}

	df, err := b.Price.ReadRange(ctx, code, table.DateColumn, start, end, req.BaseData)
	if err != nil {
		return fmt.Errorf("行情数据不可用: %w", err)
	}
	if df.Len() == 0 {
		return fmt.Errorf("区间内无行情数据")
	}

	bound, err := BindParameters(req.Parameters, df, desc, req.Values)
	if err != nil {
		return fmt.Errorf("参数绑定失败: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	result, err := desc.Invoke(bound)
	if err != nil {
		return fmt.Errorf("因子计算出错: %w", err)
	}
	if result == nil || result.Len() == 0 {
		return fmt.Errorf("因子结果为空")
	}

	if err := b.Factor.Upsert(ctx, code, result); err != nil {
		return fmt.Errorf("因子写入失败: %w", err)
	}
	return nil
}
