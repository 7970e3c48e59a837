package tencent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"

	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/pkg/httputil"
	"github.com/wonny/tailgame/pkg/logger"
	"github.com/wonny/tailgame/pkg/redis"
)

// v_ payload indices ('~' separated)
const (
	idxName        = 1
	idxCode        = 2
	idxPrice       = 3
	idxPrevClose   = 4
	idxChangePct   = 32
	idxHigh        = 33
	idxLow         = 34
	idxVolume      = 36 // 手
	idxAmount      = 37 // 万元
	idxTurnover    = 38
	idxAmplitude   = 43
	idxFloatMktCap = 44 // 亿元
	idxVolumeRatio = 49

	minFields = idxVolumeRatio + 1
)

// Client polls qt.gtimg.cn in batches
// ⭐ SSOT: Tencent quote calls only go through this client
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	codes      contracts.CodeLister
	batchSize  int
	limiter    *rate.Limiter
}

// NewClient creates a new Tencent client
func NewClient(httpClient *httputil.Client, log *logger.Logger, baseURL string, codes contracts.CodeLister, batchSize int) *Client {
	if batchSize <= 0 {
		batchSize = 60
	}
	return &Client{
		httpClient: httpClient,
		logger:     log.Component("tencent"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		codes:      codes,
		batchSize:  batchSize,
		limiter:    rate.NewLimiter(rate.Limit(20), 5),
	}
}

// WithRateLimiter applies the shared redis quota
func (c *Client) WithRateLimiter(limiter *redis.RateLimiter) *Client {
	if limiter.Enabled() {
		c.httpClient = c.httpClient.Clone().WithRateLimiter(limiter, redis.TencentRateLimit)
	}
	return c
}

// Name implements market.Source
func (c *Client) Name() contracts.DataSource {
	return contracts.SourceTencent
}

// Fetch quotes every listed code. The call fails only when every batch fails.
func (c *Client) Fetch(ctx context.Context) (*contracts.Snapshot, error) {
	codes, err := c.codes.ListCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("tencent: list codes: %w", err)
	}
	if len(codes) == 0 {
		return nil, errors.New("tencent: empty code list")
	}

	var (
		quotes  []contracts.Quote
		failed  int
		lastErr error
		total   int
	)
	for start := 0; start < len(codes); start += c.batchSize {
		end := start + c.batchSize
		if end > len(codes) {
			end = len(codes)
		}
		total++

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("tencent: pacing: %w", err)
		}

		rows, err := c.fetchBatch(ctx, codes[start:end])
		if err != nil {
			failed++
			lastErr = err
			c.logger.WithError(err).WithField("offset", start).Warn("Tencent batch failed")
			continue
		}
		quotes = append(quotes, rows...)
	}

	if failed == total {
		return nil, fmt.Errorf("tencent: all %d batches failed: %w", failed, lastErr)
	}

	c.logger.WithFields(map[string]interface{}{
		"rows":   len(quotes),
		"failed": failed,
	}).Debug("Tencent snapshot fetched")

	return &contracts.Snapshot{
		Source:    contracts.SourceTencent,
		FetchedAt: time.Now(),
		Columns: contracts.NewColumnSet(
			contracts.ColChangePct,
			contracts.ColAmount,
			contracts.ColTurnoverRate,
			contracts.ColVolumeRatio,
			contracts.ColAmplitude,
			contracts.ColFloatMarketCap,
		),
		Quotes: quotes,
	}, nil
}

func (c *Client) fetchBatch(ctx context.Context, codes []string) ([]contracts.Quote, error) {
	body, err := c.httpClient.GetBytes(ctx, c.baseURL+"/q="+strings.Join(codes, ","))
	if err != nil {
		return nil, err
	}
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), simplifiedchinese.GBK.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("gbk decode: %w", err)
	}
	return Parse(string(decoded)), nil
}

// Parse reads `v_sh600000="1~name~code~...";` lines, skipping untraded rows
func Parse(text string) []contracts.Quote {
	var quotes []contracts.Quote
	for _, line := range strings.Split(text, ";") {
		line = strings.TrimSpace(line)
		open := strings.Index(line, "=\"")
		if !strings.HasPrefix(line, "v_") || open < 0 {
			continue
		}
		payload := strings.TrimSuffix(line[open+2:], "\"")
		f := strings.Split(payload, "~")
		if len(f) < minFields {
			continue
		}

		q := contracts.Quote{
			Code:           strings.TrimSpace(f[idxCode]),
			Name:           strings.TrimSpace(f[idxName]),
			Price:          num(f[idxPrice]),
			PrevClose:      num(f[idxPrevClose]),
			ChangePct:      num(f[idxChangePct]),
			High:           num(f[idxHigh]),
			Low:            num(f[idxLow]),
			Volume:         num(f[idxVolume]) * 100,
			Amount:         num(f[idxAmount]) * 1e4,
			TurnoverRate:   num(f[idxTurnover]),
			Amplitude:      num(f[idxAmplitude]),
			FloatMarketCap: num(f[idxFloatMktCap]) * 1e8,
			VolumeRatio:    num(f[idxVolumeRatio]),
			Industry:       contracts.UnknownIndustry,
		}
		if q.Code == "" || q.Price <= 0 {
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes
}

func num(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
