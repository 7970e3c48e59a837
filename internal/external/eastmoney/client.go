package eastmoney

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/pkg/httputil"
	"github.com/wonny/tailgame/pkg/logger"
	"github.com/wonny/tailgame/pkg/redis"
)

const (
	clistPath = "/api/qt/clist/get"

	// 沪深京 A 股
	marketFilter = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23,m:0+t:81+s:2048"

	// f2 现价 f3 涨跌幅 f5 成交量(手) f6 成交额 f7 振幅 f8 换手率 f10 量比
	// f12 代码 f13 市场 f14 名称 f15 最高 f16 最低 f18 昨收 f21 流通市值 f100 行业
	quoteFields = "f2,f3,f5,f6,f7,f8,f10,f12,f13,f14,f15,f16,f18,f21,f100"
	codeFields  = "f12,f13,f14"

	pageSize = 500
	maxPages = 40

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	referer   = "https://quote.eastmoney.com/"
)

// Client fetches the full A-share list from Eastmoney push2
// ⭐ SSOT: Eastmoney clist calls only go through this client
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new Eastmoney client
func NewClient(httpClient *httputil.Client, log *logger.Logger, baseURL string) *Client {
	hc := httpClient.Clone().
		WithHeader("User-Agent", userAgent).
		WithHeader("Referer", referer).
		WithLimiter(rate.NewLimiter(rate.Every(200*time.Millisecond), 1))

	return &Client{
		httpClient: hc,
		logger:     log.Component("eastmoney"),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// WithRateLimiter applies the shared redis quota
func (c *Client) WithRateLimiter(limiter *redis.RateLimiter) *Client {
	if limiter.Enabled() {
		c.httpClient = c.httpClient.Clone().WithRateLimiter(limiter, redis.EastmoneyRateLimit)
	}
	return c
}

// Name implements market.Source
func (c *Client) Name() contracts.DataSource {
	return contracts.SourceEastmoney
}

// Fetch returns a snapshot of every listed A-share, one row per code.
// A code repeated across pages keeps its later row.
func (c *Client) Fetch(ctx context.Context) (*contracts.Snapshot, error) {
	var quotes []contracts.Quote
	index := make(map[string]int)

	err := c.walkPages(ctx, quoteFields, func(item gjson.Result) {
		q, ok := parseQuote(item)
		if !ok {
			return
		}
		if i, dup := index[q.Code]; dup {
			quotes[i] = q
			return
		}
		index[q.Code] = len(quotes)
		quotes = append(quotes, q)
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithField("rows", len(quotes)).Debug("Eastmoney snapshot fetched")

	return &contracts.Snapshot{
		Source:    contracts.SourceEastmoney,
		FetchedAt: time.Now(),
		Columns: contracts.NewColumnSet(
			contracts.ColChangePct,
			contracts.ColAmount,
			contracts.ColTurnoverRate,
			contracts.ColVolumeRatio,
			contracts.ColAmplitude,
			contracts.ColFloatMarketCap,
			contracts.ColIndustry,
		),
		Quotes: quotes,
	}, nil
}

// ListCodes returns every A-share code with its exchange prefix (sh600000, sz000001, bj830799)
func (c *Client) ListCodes(ctx context.Context) ([]string, error) {
	var codes []string
	seen := make(map[string]bool)

	err := c.walkPages(ctx, codeFields, func(item gjson.Result) {
		code := item.Get("f12").String()
		if code == "" || seen[code] {
			return
		}
		seen[code] = true
		codes = append(codes, PrefixedCode(code, item.Get("f13").Int()))
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// walkPages pages through clist/get until data.total rows were seen
func (c *Client) walkPages(ctx context.Context, fields string, fn func(gjson.Result)) error {
	seen := 0
	for page := 1; page <= maxPages; page++ {
		body, err := c.httpClient.GetBytes(ctx, c.pageURL(page, fields))
		if err != nil {
			return fmt.Errorf("eastmoney page %d: %w", page, err)
		}
		if !gjson.ValidBytes(body) {
			return fmt.Errorf("eastmoney page %d: invalid json", page)
		}

		data := gjson.GetBytes(body, "data")
		if !data.Exists() || data.Type == gjson.Null {
			if page == 1 {
				return fmt.Errorf("eastmoney: empty data (rc=%d)", gjson.GetBytes(body, "rc").Int())
			}
			return nil
		}

		total := int(data.Get("total").Int())
		count := 0
		// diff is an array, or an object keyed "0","1",... on some mirrors
		data.Get("diff").ForEach(func(_, item gjson.Result) bool {
			fn(item)
			count++
			return true
		})

		seen += count
		if count == 0 || seen >= total || count < pageSize {
			return nil
		}
	}
	c.logger.Warnf("Eastmoney paging stopped after %d pages", maxPages)
	return nil
}

func (c *Client) pageURL(page int, fields string) string {
	params := url.Values{}
	params.Set("pn", fmt.Sprintf("%d", page))
	params.Set("pz", fmt.Sprintf("%d", pageSize))
	params.Set("po", "0")
	params.Set("np", "1")
	params.Set("fltt", "2")
	params.Set("invt", "2")
	// code order stays put while prices move between pages
	params.Set("fid", "f12")
	params.Set("fs", marketFilter)
	params.Set("fields", fields)
	return c.baseURL + clistPath + "?" + params.Encode()
}

// parseQuote maps one data.diff entry; suspended rows ("-") are skipped
func parseQuote(item gjson.Result) (contracts.Quote, bool) {
	code := item.Get("f12").String()
	price, ok := number(item, "f2")
	if code == "" || !ok || price <= 0 {
		return contracts.Quote{}, false
	}

	q := contracts.Quote{
		Code:     code,
		Name:     strings.TrimSpace(item.Get("f14").String()),
		Price:    price,
		Industry: item.Get("f100").String(),
	}
	q.ChangePct, _ = number(item, "f3")
	if vol, ok := number(item, "f5"); ok {
		q.Volume = vol * 100
	}
	q.Amount, _ = number(item, "f6")
	q.Amplitude, _ = number(item, "f7")
	q.TurnoverRate, _ = number(item, "f8")
	q.VolumeRatio, _ = number(item, "f10")
	q.High, _ = number(item, "f15")
	q.Low, _ = number(item, "f16")
	q.PrevClose, _ = number(item, "f18")
	q.FloatMarketCap, _ = number(item, "f21")

	if q.Industry == "" || q.Industry == "-" {
		q.Industry = contracts.UnknownIndustry
	}
	return q, true
}

// number reads a numeric field; Eastmoney sends "-" for missing values
func number(item gjson.Result, key string) (float64, bool) {
	v := item.Get(key)
	switch v.Type {
	case gjson.Number:
		return v.Float(), true
	case gjson.String:
		if v.Str == "" || v.Str == "-" {
			return 0, false
		}
		f := v.Float()
		return f, true
	}
	return 0, false
}

// PrefixedCode converts a bare code and f13 market id into sh/sz/bj form
func PrefixedCode(code string, market int64) string {
	switch {
	case market == 1:
		return "sh" + code
	case strings.HasPrefix(code, "8"), strings.HasPrefix(code, "4"), strings.HasPrefix(code, "92"):
		return "bj" + code
	default:
		return "sz" + code
	}
}
