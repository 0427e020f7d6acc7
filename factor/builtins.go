package factor

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"stocklab/model"
	"stocklab/table"
)

// RegisterBuiltins 注册内置因子
func RegisterBuiltins(r *Registry) {
	r.Register(Descriptor{
		Name:     "moving_average",
		Function: "moving_average",
		Params: []Param{
			{Name: "df"}, {Name: "column"}, {Name: "moving_average_days"},
		},
		Call: movingAverage,
	})
	r.Register(Descriptor{
		Name:     "bollinger_bands",
		Function: "bollinger_bands",
		Params: []Param{
			{Name: "df"}, {Name: "column"}, {Name: "moving_average_days"}, {Name: "k", Default: 2},
		},
		Call: bollingerBands,
	})
	r.Register(Descriptor{
		Name:     "standard_deviation",
		Function: "standard_deviation",
		Params: []Param{
			{Name: "df"}, {Name: "column"}, {Name: "moving_average_days"},
		},
		Call: standardDeviation,
	})
	r.Register(Descriptor{
		Name:     "volume_ratio",
		Function: "calculate_volume_ratio",
		Params:   []Param{{Name: "df"}},
		Call:     volumeRatio,
	})
	r.Register(Descriptor{
		Name:     "volatility",
		Function: "calculate_volatility",
		Params: []Param{
			{Name: "df"}, {Name: "frequency", Default: "D"},
		},
		Call: volatility,
	})
	r.Register(Descriptor{
		Name:     "profit_ratio",
		Function: "calculate_profit",
		Params: []Param{
			{Name: "df"}, {Name: "price_bins", Default: 100}, {Name: "window_size", Default: 250},
		},
		Call: profitRatio,
	})
}

// ---- 实参取值 ----

func tableArg(args map[string]any) (*table.Table, error) {
	df, ok := args["df"].(*table.Table)
	if !ok || df == nil {
		return nil, fmt.Errorf("参数 df 缺失")
	}
	return df, nil
}

func strArg(args map[string]any, name string) (string, error) {
	switch v := args[name].(type) {
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("参数 %s 应为字符串，实际 %T", name, args[name])
	}
}

// intArg 请求经 JSON 解码后数字是 float64，参数串里是 int，都接受
func intArg(args map[string]any, name string) (int, error) {
	switch v := args[name].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("参数 %s=%q 不是整数", name, v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("参数 %s 应为整数，实际 %T", name, args[name])
	}
}

func floatArg(args map[string]any, name string) (float64, error) {
	switch v := args[name].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("参数 %s=%q 不是数值", name, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("参数 %s 应为数值，实际 %T", name, args[name])
	}
}

// ---- 滚动窗口 ----

// rollingMean 窗口均值，前 window-1 个位置为 NaN，窗口含 NaN 时为 NaN
func rollingMean(vals []float64, window int) []float64 {
	out := make([]float64, len(vals))
	for i := range out {
		out[i] = math.NaN()
	}
	for i := window - 1; i < len(vals); i++ {
		sum, bad := 0.0, false
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(vals[j]) {
				bad = true
				break
			}
			sum += vals[j]
		}
		if !bad {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// rollingStd 窗口样本标准差（除以 n-1）
func rollingStd(vals []float64, window int) []float64 {
	out := make([]float64, len(vals))
	for i := range out {
		out[i] = math.NaN()
	}
	if window < 2 {
		return out
	}
	for i := window - 1; i < len(vals); i++ {
		sum, bad := 0.0, false
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(vals[j]) {
				bad = true
				break
			}
			sum += vals[j]
		}
		if bad {
			continue
		}
		mean := sum / float64(window)
		var sq float64
		for j := i - window + 1; j <= i; j++ {
			d := vals[j] - mean
			sq += d * d
		}
		out[i] = math.Sqrt(sq / float64(window-1))
	}
	return out
}

// seriesFrame 按 df 的日期序列组装输出表，skipNaN 时丢弃全 NaN 的行
func seriesFrame(df *table.Table, names []string, series [][]float64, skipNaN bool) *table.Table {
	out := table.New(table.DateColumn)
	for i, key := range df.Keys() {
		row := make(map[string]float64, len(names))
		allNaN := true
		for c, name := range names {
			v := series[c][i]
			row[name] = v
			if !math.IsNaN(v) {
				allNaN = false
			}
		}
		if skipNaN && allNaN {
			continue
		}
		_ = out.AppendRow(key, row)
	}
	return out
}

func column(df *table.Table, name string) ([]float64, error) {
	vals, ok := df.Column(name)
	if !ok {
		return nil, fmt.Errorf("缺少 %s 列", name)
	}
	return vals, nil
}

// ---- 内置因子 ----

func movingAverage(args map[string]any) (*table.Table, error) {
	df, err := tableArg(args)
	if err != nil {
		return nil, err
	}
	col, err := strArg(args, "column")
	if err != nil {
		return nil, err
	}
	days, err := intArg(args, "moving_average_days")
	if err != nil {
		return nil, err
	}
	if days < 1 {
		return nil, fmt.Errorf("moving_average_days = %d 非法", days)
	}
	vals, err := column(df, col)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%d日均线", days)
	return seriesFrame(df, []string{name}, [][]float64{rollingMean(vals, days)}, false), nil
}

func bollingerBands(args map[string]any) (*table.Table, error) {
	df, err := tableArg(args)
	if err != nil {
		return nil, err
	}
	col, err := strArg(args, "column")
	if err != nil {
		return nil, err
	}
	days, err := intArg(args, "moving_average_days")
	if err != nil {
		return nil, err
	}
	k, err := floatArg(args, "k")
	if err != nil {
		return nil, err
	}
	vals, err := column(df, col)
	if err != nil {
		return nil, err
	}
	mid := rollingMean(vals, days)
	std := rollingStd(vals, days)
	lower := make([]float64, len(vals))
	upper := make([]float64, len(vals))
	for i := range vals {
		lower[i] = mid[i] - k*std[i]
		upper[i] = mid[i] + k*std[i]
	}
	names := []string{
		fmt.Sprintf("%d日下轨", days),
		fmt.Sprintf("%d日上轨", days),
	}
	return seriesFrame(df, names, [][]float64{lower, upper}, false), nil
}

func standardDeviation(args map[string]any) (*table.Table, error) {
	df, err := tableArg(args)
	if err != nil {
		return nil, err
	}
	col, err := strArg(args, "column")
	if err != nil {
		return nil, err
	}
	days, err := intArg(args, "moving_average_days")
	if err != nil {
		return nil, err
	}
	vals, err := column(df, col)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%d日标准差", days)
	return seriesFrame(df, []string{name}, [][]float64{rollingStd(vals, days)}, false), nil
}

// volumeRatio 量比：当日成交量 / 5 日均成交量，前 4 天无均值的行丢弃
func volumeRatio(args map[string]any) (*table.Table, error) {
	df, err := tableArg(args)
	if err != nil {
		return nil, err
	}
	vol, err := column(df, model.ColVolume)
	if err != nil {
		return nil, err
	}
	avg := rollingMean(vol, 5)
	ratio := make([]float64, len(vol))
	for i := range vol {
		if math.IsNaN(avg[i]) || avg[i] == 0 {
			ratio[i] = math.NaN()
		} else {
			ratio[i] = vol[i] / avg[i]
		}
	}
	return seriesFrame(df, []string{"量比"}, [][]float64{ratio}, true), nil
}

// volatility 日收益率序列。frequency 为 W/M 时按周/月把日收益率
// 复利合并，记在该周期最后一个交易日上。
func volatility(args map[string]any) (*table.Table, error) {
	df, err := tableArg(args)
	if err != nil {
		return nil, err
	}
	freq, err := strArg(args, "frequency")
	if err != nil {
		return nil, err
	}
	closes, err := column(df, model.ColClose)
	if err != nil {
		return nil, err
	}

	daily := make([]float64, len(closes))
	for i := range closes {
		if i == 0 || closes[i-1] == 0 || math.IsNaN(closes[i-1]) || math.IsNaN(closes[i]) {
			daily[i] = math.NaN()
		} else {
			daily[i] = closes[i]/closes[i-1] - 1
		}
	}

	switch freq {
	case "D":
		return seriesFrame(df, []string{"波动率"}, [][]float64{daily}, false), nil
	case "W", "M":
		return resampleReturns(df.Keys(), daily, freq)
	default:
		return nil, fmt.Errorf("frequency 必须是 D、W 或 M，收到 %q", freq)
	}
}

// resampleReturns 把日收益率按周/月复利合并
func resampleReturns(dates []string, daily []float64, freq string) (*table.Table, error) {
	out := table.New(table.DateColumn)
	var (
		curKey   string
		lastDate string
		compound = 1.0
		seen     bool
	)
	flush := func() {
		if curKey == "" {
			return
		}
		v := compound - 1
		if !seen {
			v = math.NaN()
		}
		_ = out.AppendRow(lastDate, map[string]float64{"波动率": v})
	}
	for i, d := range dates {
		key, err := periodKey(d, freq)
		if err != nil {
			return nil, err
		}
		if key != curKey {
			flush()
			curKey, compound, seen = key, 1.0, false
		}
		lastDate = d
		if !math.IsNaN(daily[i]) {
			compound *= 1 + daily[i]
			seen = true
		}
	}
	flush()
	return out, nil
}

func periodKey(date, freq string) (string, error) {
	if len(date) < 10 {
		return "", fmt.Errorf("日期 %q 格式非法", date)
	}
	if freq == "M" {
		return date[:7], nil
	}
	t, err := parseDate(date)
	if err != nil {
		return "", err
	}
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week), nil
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s[:10])
}

// profitRatio 基于筹码分布的获利盘比例：收盘价映射进 price_bins 个价格
// 区间，滚动 window_size 天累计各区间成交量，获利盘 = 低于当日收盘价的
// 区间成交量占比。
func profitRatio(args map[string]any) (*table.Table, error) {
	df, err := tableArg(args)
	if err != nil {
		return nil, err
	}
	priceBins, err := intArg(args, "price_bins")
	if err != nil {
		return nil, err
	}
	windowSize, err := intArg(args, "window_size")
	if err != nil {
		return nil, err
	}
	if priceBins < 2 || windowSize < 1 {
		return nil, fmt.Errorf("price_bins=%d window_size=%d 非法", priceBins, windowSize)
	}
	closes, err := column(df, model.ColCloseQFQ)
	if err != nil {
		return nil, err
	}
	volumes, err := column(df, model.ColVolumeQFQ)
	if err != nil {
		return nil, err
	}

	minP, maxP := math.Inf(1), math.Inf(-1)
	for _, p := range closes {
		if math.IsNaN(p) {
			continue
		}
		minP = math.Min(minP, p)
		maxP = math.Max(maxP, p)
	}
	if minP > maxP {
		return nil, fmt.Errorf("收盘价全部缺失")
	}

	// 等距价格档位，收盘价落入最近的下界档
	priceAt := func(bin int) float64 {
		if priceBins == 1 {
			return minP
		}
		return minP + (maxP-minP)*float64(bin)/float64(priceBins-1)
	}
	binOf := func(p float64) int {
		if maxP == minP {
			return 0
		}
		b := int((p - minP) / (maxP - minP) * float64(priceBins-1))
		if b < 0 {
			b = 0
		}
		if b >= priceBins {
			b = priceBins - 1
		}
		return b
	}

	bins := make([]int, len(closes))
	for i, p := range closes {
		bins[i] = binOf(p)
	}

	volAt := make([]float64, priceBins)
	ratios := make([]float64, len(closes))
	for i := range closes {
		if i >= windowSize {
			old := i - windowSize
			volAt[bins[old]] -= volumes[old]
		}
		volAt[bins[i]] += volumes[i]

		var total, profitable float64
		for b := 0; b < priceBins; b++ {
			total += volAt[b]
			if priceAt(b) < closes[i] {
				profitable += volAt[b]
			}
		}
		if total > 0 {
			ratios[i] = profitable / total
		} else {
			ratios[i] = 0
		}
	}
	return seriesFrame(df, []string{"获利盘比例"}, [][]float64{ratios}, false), nil
}
