package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"stocklab/model"
	"stocklab/table"
)

const (
	// 新浪股票行情接口
	sinaStockURL = "http://hq.sinajs.cn/list=%s"
)

// QuoteFetcher 实时行情拉取器
type QuoteFetcher struct {
	client *http.Client
}

// NewQuoteFetcher 创建实时行情拉取器
func NewQuoteFetcher() *QuoteFetcher {
	return &QuoteFetcher{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Fetch 拉取多只股票的实时行情
func (f *QuoteFetcher) Fetch(ctx context.Context, codes []string) ([]*model.Quote, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	url := fmt.Sprintf(sinaStockURL, strings.Join(codes, ","))

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Referer", "http://finance.sina.com.cn/")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	// 读取并转换编码（新浪返回GBK编码）
	reader := transform.NewReader(resp.Body, simplifiedchinese.GBK.NewDecoder())
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	return parseQuotes(string(body)), nil
}

// QuoteFrame 把一条实时报价转成单行行情表（不复权列），日期为主键，
// 用于收盘后把当日行情补进日线表。前复权列要除权信息才能算，
// 留给下一次K线全量更新补齐。
func QuoteFrame(q *model.Quote) (*table.Table, error) {
	if q.Date == "" || q.Price <= 0 {
		return nil, fmt.Errorf("股票 %s 报价缺少日期或价格", q.Code)
	}
	out := table.New(table.DateColumn)
	_ = out.AppendRow(q.Date, map[string]float64{
		model.ColOpen:   q.Open,
		model.ColClose:  q.Price,
		model.ColHigh:   q.High,
		model.ColLow:    q.Low,
		model.ColVolume: float64(q.Volume),
		model.ColAmount: q.Amount,
	})
	return out, nil
}

var quoteLineRe = regexp.MustCompile(`var hq_str_(\w+)="([^"]*)"`)

// parseQuotes 解析新浪行情响应
// 格式: var hq_str_sh600000="浦发银行,11.85,11.83,11.80,11.89,11.77,...";
func parseQuotes(data string) []*model.Quote {
	var quotes []*model.Quote
	for _, match := range quoteLineRe.FindAllStringSubmatch(data, -1) {
		if len(match) < 3 || match[2] == "" {
			continue
		}
		quote, err := parseQuoteLine(match[1], match[2])
		if err != nil {
			continue // 跳过解析失败的
		}
		quotes = append(quotes, quote)
	}
	return quotes
}

// parseQuoteLine 解析单行股票数据
// 字段顺序：名称,今开,昨收,当前价,最高,最低,买一价,卖一价,成交量,成交额,
//
//	...（五档盘口）..., 日期,时间,...
func parseQuoteLine(code, content string) (*model.Quote, error) {
	fields := strings.Split(content, ",")
	if len(fields) < 32 {
		return nil, fmt.Errorf("字段数量不足: %d", len(fields))
	}

	return &model.Quote{
		Code:     code,
		Name:     fields[0],
		Open:     parseFloat(fields[1]),
		PreClose: parseFloat(fields[2]),
		Price:    parseFloat(fields[3]),
		High:     parseFloat(fields[4]),
		Low:      parseFloat(fields[5]),
		Volume:   parseInt(fields[8]),
		Amount:   parseFloat(fields[9]),
		Date:     fields[30],
		Time:     fields[31],
	}, nil
}

// parseFloat 解析浮点数
func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// parseInt 解析整数
func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
