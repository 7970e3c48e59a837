package tushare

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/pkg/httputil"
	"github.com/wonny/tailgame/pkg/logger"
	"github.com/wonny/tailgame/pkg/redis"
)

const (
	// rt_k: A股实时日线, wildcard ts_code covers the whole board
	realtimeAPI   = "rt_k"
	allBoards     = "0*.SZ,3*.SZ,6*.SH"
	realtimeField = "ts_code,name,pre_close,open,high,low,close,vol,amount"
)

// ErrNoToken is returned when the source is asked to fetch without credentials
var ErrNoToken = errors.New("tushare: token not configured")

// Client calls the Tushare Pro HTTP API
// ⭐ SSOT: Tushare calls only go through this client
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	token      string
}

// NewClient creates a new Tushare client
func NewClient(httpClient *httputil.Client, log *logger.Logger, baseURL, token string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.Component("tushare"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// WithRateLimiter applies the shared redis quota (free tier: 2 calls/min)
func (c *Client) WithRateLimiter(limiter *redis.RateLimiter) *Client {
	if limiter.Enabled() {
		c.httpClient = c.httpClient.Clone().WithRateLimiter(limiter, redis.TushareRateLimit)
	}
	return c
}

// Name implements market.Source
func (c *Client) Name() contracts.DataSource {
	return contracts.SourceTushare
}

// request is the Tushare Pro envelope
type request struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields"`
}

// Fetch returns the realtime daily bar of every A-share
func (c *Client) Fetch(ctx context.Context) (*contracts.Snapshot, error) {
	if c.token == "" {
		return nil, ErrNoToken
	}

	rows, err := c.query(ctx, realtimeAPI, map[string]string{"ts_code": allBoards}, realtimeField)
	if err != nil {
		return nil, err
	}

	quotes := make([]contracts.Quote, 0, len(rows))
	for _, row := range rows {
		if q, ok := parseRow(row); ok {
			quotes = append(quotes, q)
		}
	}

	c.logger.WithField("rows", len(quotes)).Debug("Tushare snapshot fetched")

	return &contracts.Snapshot{
		Source:    contracts.SourceTushare,
		FetchedAt: time.Now(),
		Columns: contracts.NewColumnSet(
			contracts.ColChangePct,
			contracts.ColAmount,
			contracts.ColAmplitude,
		),
		Quotes: quotes,
	}, nil
}

// query posts one API call and zips data.fields with each of data.items
func (c *Client) query(ctx context.Context, api string, params map[string]string, fields string) ([]map[string]interface{}, error) {
	body, err := c.httpClient.PostJSONBytes(ctx, c.baseURL, request{
		APIName: api,
		Token:   c.token,
		Params:  params,
		Fields:  fields,
	})
	if err != nil {
		return nil, fmt.Errorf("tushare %s: %w", api, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("tushare %s: invalid json", api)
	}

	if code := gjson.GetBytes(body, "code").Int(); code != 0 {
		return nil, fmt.Errorf("tushare %s: code %d: %s", api, code, gjson.GetBytes(body, "msg").String())
	}

	names := gjson.GetBytes(body, "data.fields").Array()
	if len(names) == 0 {
		return nil, fmt.Errorf("tushare %s: no fields in response", api)
	}

	items := gjson.GetBytes(body, "data.items").Array()
	rows := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		cells := item.Array()
		row := make(map[string]interface{}, len(names))
		for i, name := range names {
			if i < len(cells) {
				row[name.String()] = cells[i].Value()
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseRow maps one rt_k row; rows without a trade price are skipped
func parseRow(row map[string]interface{}) (contracts.Quote, bool) {
	tsCode := cast.ToString(row["ts_code"])
	code, _, _ := strings.Cut(tsCode, ".")
	price := cast.ToFloat64(row["close"])
	if code == "" || price <= 0 {
		return contracts.Quote{}, false
	}

	q := contracts.Quote{
		Code:      code,
		Name:      strings.TrimSpace(cast.ToString(row["name"])),
		Price:     price,
		PrevClose: cast.ToFloat64(row["pre_close"]),
		High:      cast.ToFloat64(row["high"]),
		Low:       cast.ToFloat64(row["low"]),
		Volume:    cast.ToFloat64(row["vol"]),
		Amount:    cast.ToFloat64(row["amount"]),
		Industry:  contracts.UnknownIndustry,
	}
	q.DeriveFromPrices()
	return q, true
}
