package backtest

import (
	"context"
	"fmt"
	"math"

	"stocklab/model"
	"stocklab/table"
)

// Simulate 在按日期升序的行情上执行买卖信号，返回交易流水和最终总资产。
//
// 规则与约束：
//   - 每行最多发生一个动作；买入用全部现金按收盘价取整数股，卖出清仓
//   - 最后一行不开新仓；收盘后仍持仓则按最后一行收盘价强制平仓
//   - 金额在记账时保留两位小数；总资产 = 现金 + 持仓×收盘价，
//     卖出行记卖出后的现金
func Simulate(ctx context.Context, rows *table.Table, buy, sell []bool, initialCash float64) ([]TradeRecord, float64, error) {
	n := rows.Len()
	if len(buy) != n || len(sell) != n {
		return nil, 0, fmt.Errorf("信号长度 %d/%d 与行数 %d 不一致", len(buy), len(sell), n)
	}

	st := PortfolioState{Cash: initialCash}
	var ledger []TradeRecord
	finalAssets := round2(initialCash)
	keys := rows.Keys()

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		closePrice, ok := rows.Value(model.ColClose, i)
		if !ok || math.IsNaN(closePrice) || closePrice <= 0 {
			return nil, 0, fmt.Errorf("第 %s 行收盘价缺失", keys[i])
		}
		totalAssets := round2(st.Cash + float64(st.Position)*closePrice)
		isLast := i == n-1

		switch {
		case st.Position == 0 && buy[i] && st.Cash >= closePrice && !isLast:
			qty := int64(st.Cash / closePrice)
			st.Cash = round2(st.Cash - float64(qty)*closePrice)
			st.Position = qty
			ledger = append(ledger, TradeRecord{
				Date:        keys[i],
				Action:      ActionBuy,
				Price:       round2(closePrice),
				Quantity:    qty,
				CashBalance: st.Cash,
				Position:    st.Position,
				TotalAssets: totalAssets,
			})
		case st.Position > 0 && sell[i]:
			qty := st.Position
			st.Cash = round2(st.Cash + float64(qty)*closePrice)
			st.Position = 0
			totalAssets = st.Cash
			ledger = append(ledger, TradeRecord{
				Date:        keys[i],
				Action:      ActionSell,
				Price:       round2(closePrice),
				Quantity:    qty,
				CashBalance: st.Cash,
				Position:    0,
				TotalAssets: totalAssets,
			})
		}
		finalAssets = totalAssets
	}

	// 收盘仍持仓则按最后收盘价强制平仓
	if st.Position > 0 {
		lastClose, _ := rows.Value(model.ColClose, n-1)
		qty := st.Position
		st.Cash = round2(st.Cash + float64(qty)*lastClose)
		st.Position = 0
		finalAssets = st.Cash
		ledger = append(ledger, TradeRecord{
			Date:        keys[n-1],
			Action:      ActionSell,
			Price:       round2(lastClose),
			Quantity:    qty,
			CashBalance: st.Cash,
			Position:    0,
			TotalAssets: finalAssets,
		})
	}
	return ledger, finalAssets, nil
}
