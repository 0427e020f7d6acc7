// Package fetcher pulls daily K-line history and realtime quotes from the
// public eastmoney / sina endpoints and shapes them into store frames.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stocklab/model"
	"stocklab/table"
)

// 复权方式
const (
	AdjustNone    = 0 // 不复权
	AdjustForward = 1 // 前复权
)

// KLineFetcher K线数据拉取器
type KLineFetcher struct {
	client *http.Client
}

// NewKLineFetcher 创建K线数据拉取器
func NewKLineFetcher() *KLineFetcher {
	return &KLineFetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// secID 转换代码格式: sh600000 -> 1.600000, sz000001 -> 0.000001
func secID(code string) (string, error) {
	if len(code) <= 2 {
		return "", fmt.Errorf("股票代码格式错误: %s", code)
	}
	num := code[2:]
	switch code[:2] {
	case "sh":
		return "1." + num, nil
	case "sz":
		return "0." + num, nil
	default:
		return "", fmt.Errorf("未知的股票代码格式: %s", code)
	}
}

// FetchDaily 获取股票日K线数据
// code: 股票代码（如 sh600000, sz000001）
// days: 获取天数
// adjust: 复权方式（AdjustNone / AdjustForward）
func (f *KLineFetcher) FetchDaily(ctx context.Context, code string, days, adjust int) ([]model.KLine, error) {
	secid, err := secID(code)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf(
		"https://push2his.eastmoney.com/api/qt/stock/kline/get?secid=%s&fields1=f1,f2,f3,f4,f5,f6&fields2=f51,f52,f53,f54,f55,f56,f57&klt=101&fqt=%d&end=20500101&lmt=%d",
		secid, adjust, days,
	)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Referer", "https://quote.eastmoney.com/")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return parseKLines(body)
}

// parseKLines 解析东方财富K线响应
func parseKLines(data []byte) ([]model.KLine, error) {
	var result struct {
		Data struct {
			Klines []string `json:"klines"`
		} `json:"data"`
	}

	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	var klines []model.KLine
	for _, line := range result.Data.Klines {
		// 格式: 日期,开盘,收盘,最高,最低,成交量,成交额
		parts := strings.Split(line, ",")
		if len(parts) < 7 {
			continue
		}

		open, _ := strconv.ParseFloat(parts[1], 64)
		closePrice, _ := strconv.ParseFloat(parts[2], 64)
		high, _ := strconv.ParseFloat(parts[3], 64)
		low, _ := strconv.ParseFloat(parts[4], 64)
		volume, _ := strconv.ParseInt(parts[5], 10, 64)
		amount, _ := strconv.ParseFloat(parts[6], 64)

		klines = append(klines, model.KLine{
			Date:   parts[0],
			Open:   open,
			Close:  closePrice,
			High:   high,
			Low:    low,
			Volume: volume,
			Amount: amount,
		})
	}

	return klines, nil
}

// FetchFrame 拉取不复权和前复权两套日K线并拼成一张行情表，
// 列名与行情库约定一致（开盘_不复权、收盘_前复权等）。
func (f *KLineFetcher) FetchFrame(ctx context.Context, code string, days int) (*table.Table, error) {
	raw, err := f.FetchDaily(ctx, code, days, AdjustNone)
	if err != nil {
		return nil, fmt.Errorf("拉取不复权K线失败: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("股票 %s 无K线数据", code)
	}
	forward, err := f.FetchDaily(ctx, code, days, AdjustForward)
	if err != nil {
		return nil, fmt.Errorf("拉取前复权K线失败: %w", err)
	}

	out := KLineFrame(raw, nil)
	return out.MergeInner(KLineFrame(forward, qfqColumns)), nil
}

var rawColumns = map[string]string{
	"open": model.ColOpen, "close": model.ColClose, "high": model.ColHigh,
	"low": model.ColLow, "volume": model.ColVolume, "amount": model.ColAmount,
}

var qfqColumns = map[string]string{
	"open": model.ColOpenQFQ, "close": model.ColCloseQFQ, "high": model.ColHighQFQ,
	"low": model.ColLowQFQ, "volume": model.ColVolumeQFQ, "amount": model.ColAmountQFQ,
}

// KLineFrame 把K线序列转成日期主键的行情表。cols 为空用不复权列名。
func KLineFrame(klines []model.KLine, cols map[string]string) *table.Table {
	if cols == nil {
		cols = rawColumns
	}
	out := table.New(table.DateColumn)
	for _, k := range klines {
		// 接口偶发乱序或重复的行直接丢弃
		_ = out.AppendRow(k.Date, map[string]float64{
			cols["open"]:   k.Open,
			cols["close"]:  k.Close,
			cols["high"]:   k.High,
			cols["low"]:    k.Low,
			cols["volume"]: float64(k.Volume),
			cols["amount"]: k.Amount,
		})
	}
	return out
}
