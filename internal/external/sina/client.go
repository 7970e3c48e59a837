package sina

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

const (
	referer   = "https://finance.sina.com.cn/"
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// hq_str_ fields: 0 名称 1 今开 2 昨收 3 现价 4 最高 5 最低 ... 8 成交量(股) 9 成交额(元)
	minFields = 10
)

// Client polls hq.sinajs.cn in paced batches
// ⭐ SSOT: Sina quote calls only go through this client
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	codes      contracts.CodeLister
	batchSize  int
	limiter    *rate.Limiter
}

// NewClient creates a new Sina client.
// batchRate is batches per second; one batch of batchSize codes per tick.
func NewClient(httpClient *httputil.Client, log *logger.Logger, baseURL string, codes contracts.CodeLister, batchSize int, batchRate float64) *Client {
	if batchSize <= 0 {
		batchSize = 800
	}
	if batchRate <= 0 {
		batchRate = 1 / 0.3
	}
	return &Client{
		httpClient: httpClient.Clone().
			WithHeader("Referer", referer).
			WithHeader("User-Agent", userAgent),
		logger:    log.Component("sina"),
		baseURL:   strings.TrimRight(baseURL, "/"),
		codes:     codes,
		batchSize: batchSize,
		limiter:   rate.NewLimiter(rate.Limit(batchRate), 1),
	}
}

// WithRateLimiter applies the shared redis quota
func (c *Client) WithRateLimiter(limiter *redis.RateLimiter) *Client {
	if limiter.Enabled() {
		c.httpClient = c.httpClient.Clone().WithRateLimiter(limiter, redis.SinaRateLimit)
	}
	return c
}

// Name implements market.Source
func (c *Client) Name() contracts.DataSource {
	return contracts.SourceSina
}

// Fetch quotes every listed code. Failed batches are skipped; the call only
// fails when no batch succeeds.
func (c *Client) Fetch(ctx context.Context) (*contracts.Snapshot, error) {
	codes, err := c.codes.ListCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("sina: list codes: %w", err)
	}
	if len(codes) == 0 {
		return nil, errors.New("sina: empty code list")
	}

	var (
		quotes  []contracts.Quote
		failed  int
		lastErr error
	)
	batches := chunk(codes, c.batchSize)
	for i, batch := range batches {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("sina: pacing: %w", err)
		}

		rows, err := c.fetchBatch(ctx, batch)
		if err != nil {
			failed++
			lastErr = err
			c.logger.WithError(err).WithField("batch", i).Warn("Sina batch failed")
			continue
		}
		quotes = append(quotes, rows...)
	}

	if failed == len(batches) {
		return nil, fmt.Errorf("sina: all %d batches failed: %w", failed, lastErr)
	}

	c.logger.WithFields(map[string]interface{}{
		"rows":    len(quotes),
		"batches": len(batches),
		"failed":  failed,
	}).Debug("Sina snapshot fetched")

	return &contracts.Snapshot{
		Source:    contracts.SourceSina,
		FetchedAt: time.Now(),
		Columns: contracts.NewColumnSet(
			contracts.ColChangePct,
			contracts.ColAmount,
			contracts.ColAmplitude,
		),
		Quotes: quotes,
	}, nil
}

func (c *Client) fetchBatch(ctx context.Context, codes []string) ([]contracts.Quote, error) {
	body, err := c.httpClient.GetBytes(ctx, c.baseURL+"/list="+strings.Join(codes, ","))
	if err != nil {
		return nil, err
	}
	text, err := decodeGBK(body)
	if err != nil {
		return nil, err
	}
	return Parse(text), nil
}

// decodeGBK converts the GBK payload to UTF-8
func decodeGBK(body []byte) (string, error) {
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), simplifiedchinese.GBK.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("gbk decode: %w", err)
	}
	return string(decoded), nil
}

// Parse reads `var hq_str_sh600000="...";` lines. Rows that have not traded
// (empty payload or zero price) are skipped.
func Parse(text string) []contracts.Quote {
	var quotes []contracts.Quote
	for _, line := range strings.Split(text, ";") {
		line = strings.TrimSpace(line)
		start := strings.Index(line, "hq_str_")
		if start < 0 {
			continue
		}
		rest := line[start+len("hq_str_"):]
		eq := strings.Index(rest, "=\"")
		if eq < 0 {
			continue
		}
		symbol := rest[:eq]
		payload := strings.TrimSuffix(rest[eq+2:], "\"")

		fields := strings.Split(payload, ",")
		if len(fields) < minFields || len(symbol) < 3 {
			continue
		}

		q := contracts.Quote{
			Code:      symbol[2:],
			Name:      strings.TrimSpace(fields[0]),
			PrevClose: parseFloat(fields[2]),
			Price:     parseFloat(fields[3]),
			High:      parseFloat(fields[4]),
			Low:       parseFloat(fields[5]),
			Volume:    parseFloat(fields[8]),
			Amount:    parseFloat(fields[9]),
			Industry:  contracts.UnknownIndustry,
		}
		if q.Price <= 0 || q.PrevClose <= 0 {
			continue
		}
		q.DeriveFromPrices()
		quotes = append(quotes, q)
	}
	return quotes
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func chunk(codes []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(codes); start += size {
		end := start + size
		if end > len(codes) {
			end = len(codes)
		}
		out = append(out, codes[start:end])
	}
	return out
}
