// Package model holds shared market-data types and the canonical Chinese
// column names used across the price and factor stores.
package model

// 行情表列名（与数据源列名保持一致，不复权/前复权两套）
const (
	ColOpen   = "开盘_不复权"
	ColClose  = "收盘_不复权"
	ColHigh   = "最高_不复权"
	ColLow    = "最低_不复权"
	ColVolume = "成交量_不复权"
	ColAmount = "成交额_不复权"

	ColOpenQFQ   = "开盘_前复权"
	ColCloseQFQ  = "收盘_前复权"
	ColHighQFQ   = "最高_前复权"
	ColLowQFQ    = "最低_前复权"
	ColVolumeQFQ = "成交量_前复权"
	ColAmountQFQ = "成交额_前复权"
)

// KLine 日K线
type KLine struct {
	Date   string  `json:"date"`   // 日期 (2006-01-02)
	Open   float64 `json:"open"`   // 开盘价
	Close  float64 `json:"close"`  // 收盘价
	High   float64 `json:"high"`   // 最高价
	Low    float64 `json:"low"`    // 最低价
	Volume int64   `json:"volume"` // 成交量
	Amount float64 `json:"amount"` // 成交额
}

// Quote A股实时报价（用于把当日行情补进日线表）
type Quote struct {
	Code     string  `json:"code"`      // 股票代码 (sh600000, sz000001)
	Name     string  `json:"name"`      // 股票名称
	Open     float64 `json:"open"`      // 今开
	PreClose float64 `json:"pre_close"` // 昨收
	Price    float64 `json:"price"`     // 当前价
	High     float64 `json:"high"`      // 最高
	Low      float64 `json:"low"`       // 最低
	Volume   int64   `json:"volume"`    // 成交量（股）
	Amount   float64 `json:"amount"`    // 成交额（元）
	Date     string  `json:"date"`      // 日期
	Time     string  `json:"time"`      // 时间
}

// Change 计算涨跌额
func (q *Quote) Change() float64 {
	return q.Price - q.PreClose
}

// ChangePercent 计算涨跌幅
func (q *Quote) ChangePercent() float64 {
	if q.PreClose == 0 {
		return 0
	}
	return (q.Price - q.PreClose) / q.PreClose * 100
}
