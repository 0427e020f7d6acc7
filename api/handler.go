package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"stocklab/backtest"
	"stocklab/config"
	"stocklab/event"
	"stocklab/factor"
	"stocklab/fetcher"
	"stocklab/model"
	"stocklab/pool"
	"stocklab/store"
)

// 数据更新默认拉取的K线天数
const defaultFetchDays = 120

// Handler API处理器
type Handler struct {
	runner   *backtest.Runner
	batch    *factor.Batch
	registry *factor.Registry
	price    store.Store
	system   store.Store
	klines   *fetcher.KLineFetcher
	quotes   *fetcher.QuoteFetcher
	sink     event.Sink
	log      zerolog.Logger
	workers  int
	stocks   []string // system 表没有 stock_list 时的兜底
}

// HandlerConfig Handler 的依赖
type HandlerConfig struct {
	Runner   *backtest.Runner
	Batch    *factor.Batch
	Registry *factor.Registry
	Price    store.Store
	System   store.Store
	KLines   *fetcher.KLineFetcher
	Quotes   *fetcher.QuoteFetcher
	Sink     event.Sink
	Log      zerolog.Logger
	Workers  int
	Stocks   []string
}

// NewHandler 创建处理器
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		runner:   cfg.Runner,
		batch:    cfg.Batch,
		registry: cfg.Registry,
		price:    cfg.Price,
		system:   cfg.System,
		klines:   cfg.KLines,
		quotes:   cfg.Quotes,
		sink:     cfg.Sink,
		log:      cfg.Log,
		workers:  cfg.Workers,
		stocks:   cfg.Stocks,
	}
}

// stockList 解析本次请求作用的股票列表:
// 请求显式给了就用请求的，否则查 system 表，最后落回配置默认值
func (h *Handler) stockList(c *gin.Context, requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	snap, _ := config.LoadSnapshot(c.Request.Context(), h.system)
	if list := snap.StockList(); len(list) > 0 {
		return list
	}
	return h.stocks
}

// Backtest 批量回测
func (h *Handler) Backtest(c *gin.Context) {
	var req backtest.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}
	req.Instruments = h.stockList(c, req.Instruments)

	resp, err := h.runner.Run(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ComputeFactor 批量因子计算
func (h *Handler) ComputeFactor(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	req := &factor.BatchRequest{
		FactorName: stringField(raw, "factor_name"),
		Function:   stringField(raw, "factor"),
		Parameters: stringField(raw, "parameters"),
		BaseData:   listField(raw, "baseData"),
		Start:      stringField(raw, "start_date"),
		End:        stringField(raw, "end_date"),
		Values:     raw,
	}
	stocks := h.stockList(c, listField(raw, "stock_list"))

	res := h.batch.Compute(c.Request.Context(), stocks, req)
	if res.Error != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": res.Error})
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListFactors 列出已注册的因子及其参数
func (h *Handler) ListFactors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"factors": h.registry.List()})
}

// UpdateData 批量拉取日K线并写入行情库
func (h *Handler) UpdateData(c *gin.Context) {
	var req struct {
		Stocks []string `json:"stock_list"`
		Days   int      `json:"days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}
	if req.Days <= 0 {
		req.Days = defaultFetchDays
	}
	stocks := h.stockList(c, req.Stocks)
	if len(stocks) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "股票列表为空"})
		return
	}

	var failed []gin.H
	pool.Run(c.Request.Context(), stocks, h.workers, func(ctx context.Context, code string) error {
		frame, err := h.klines.FetchFrame(ctx, code, req.Days)
		if err != nil {
			return err
		}
		return h.price.Upsert(ctx, code, frame)
	}, func(res pool.Result, p pool.Progress) {
		if res.Err != nil {
			h.log.Warn().Str("stock", res.ID).Err(res.Err).Msg("行情更新失败")
			failed = append(failed, gin.H{"stock": res.ID, "error": res.Err.Error()})
		}
		if h.sink != nil {
			h.sink.Emit(event.EventProgress, p)
		}
	})

	c.JSON(http.StatusOK, gin.H{
		"message": "数据更新完成",
		"total":   len(stocks),
		"failed":  failed,
	})
}

// AppendDaily 拉取实时报价并把当日行情补进日线表。
// 收盘后跑一次，比全量K线更新轻量；前复权列等下一次全量更新补齐。
func (h *Handler) AppendDaily(c *gin.Context) {
	var req struct {
		Stocks []string `json:"stock_list"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}
	stocks := h.stockList(c, req.Stocks)
	if len(stocks) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "股票列表为空"})
		return
	}

	quotes, err := h.quotes.Fetch(c.Request.Context(), stocks)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if len(quotes) == 0 {
		c.JSON(http.StatusBadGateway, gin.H{"error": "未获取到行情数据"})
		return
	}

	failed := h.appendQuotes(c.Request.Context(), quotes)
	c.JSON(http.StatusOK, gin.H{
		"message": "当日行情已写入",
		"total":   len(quotes),
		"failed":  failed,
	})
}

// appendQuotes 逐只把报价转成单行行情表写入行情库，单只失败不影响其余
func (h *Handler) appendQuotes(ctx context.Context, quotes []*model.Quote) []gin.H {
	byCode := make(map[string]*model.Quote, len(quotes))
	codes := make([]string, 0, len(quotes))
	for _, q := range quotes {
		byCode[q.Code] = q
		codes = append(codes, q.Code)
	}

	var failed []gin.H
	pool.Run(ctx, codes, h.workers, func(ctx context.Context, code string) error {
		frame, err := fetcher.QuoteFrame(byCode[code])
		if err != nil {
			return err
		}
		return h.price.Upsert(ctx, code, frame)
	}, func(res pool.Result, p pool.Progress) {
		if res.Err != nil {
			h.log.Warn().Str("stock", res.ID).Err(res.Err).Msg("当日行情写入失败")
			failed = append(failed, gin.H{"stock": res.ID, "error": res.Err.Error()})
		}
		if h.sink != nil {
			h.sink.Emit(event.EventProgress, p)
		}
	})
	return failed
}

// Quotes 拉取实时行情（codes 逗号分隔，缺省用配置的股票列表）
func (h *Handler) Quotes(c *gin.Context) {
	codes := config.SplitList(c.Query("codes"))
	codes = h.stockList(c, codes)
	if len(codes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "股票列表为空"})
		return
	}

	quotes, err := h.quotes.Fetch(c.Request.Context(), codes)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	result := make([]gin.H, 0, len(quotes))
	for _, q := range quotes {
		result = append(result, gin.H{
			"quote":          q,
			"change":         q.Change(),
			"change_percent": q.ChangePercent(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"count": len(result), "data": result})
}

// GetConfig 读取 system 表的全部运行时配置
func (h *Handler) GetConfig(c *gin.Context) {
	rows, err := h.system.ReadRows(c.Request.Context(), config.SystemTable)
	if err != nil {
		// 表还没建，返回空配置
		c.JSON(http.StatusOK, gin.H{"config": []map[string]string{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": rows})
}

// SetConfig 写入运行时配置项
func (h *Handler) SetConfig(c *gin.Context) {
	var entries map[string]string
	if err := c.ShouldBindJSON(&entries); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}
	if len(entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "配置项为空"})
		return
	}
	if err := config.SaveEntries(c.Request.Context(), h.system, entries); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "配置已保存"})
}

// stringField 从原始请求取字符串字段
func stringField(raw map[string]any, name string) string {
	if v, ok := raw[name].(string); ok {
		return v
	}
	return ""
}

// listField 取字符串数组字段，也接受逗号分隔的字符串
func listField(raw map[string]any, name string) []string {
	switch v := raw[name].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return config.SplitList(v)
	default:
		return nil
	}
}
