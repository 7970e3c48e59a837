package tencent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/pkg/config"
	"github.com/wonny/tailgame/pkg/httputil"
	"github.com/wonny/tailgame/pkg/logger"
)

type staticCodes []string

func (s staticCodes) ListCodes(context.Context) ([]string, error) {
	return s, nil
}

func newTestClient(baseURL string, codes contracts.CodeLister, batchSize int) *Client {
	cfg := &config.Config{Sources: config.SourcesConfig{HTTPTimeout: 5 * time.Second}}
	hc := httputil.New(cfg, logger.Nop()).DisableRetry()
	return NewClient(hc, logger.Nop(), baseURL, codes, batchSize)
}

// line renders one v_ record with the given index overrides
func line(symbol string, values map[int]string) string {
	fields := make([]string, minFields+3)
	for i := range fields {
		fields[i] = "0"
	}
	for i, v := range values {
		fields[i] = v
	}
	return fmt.Sprintf("v_%s=\"%s\";\n", symbol, strings.Join(fields, "~"))
}

func fixture() string {
	return line("sh600000", map[int]string{
		idxName: "浦发银行", idxCode: "600000", idxPrice: "10.50", idxPrevClose: "10.00",
		idxChangePct: "5.00", idxHigh: "10.80", idxLow: "9.90", idxVolume: "12000",
		idxAmount: "1260", idxTurnover: "1.25", idxAmplitude: "9.00",
		idxFloatMktCap: "3000.5", idxVolumeRatio: "2.10",
	}) + line("sz000004", map[int]string{
		idxName: "停牌股", idxCode: "000004", idxPrice: "0.00", idxPrevClose: "8.00",
	}) + `v_sz399999="1~short~399999";` + "\n"
}

func TestParse(t *testing.T) {
	quotes := Parse(fixture())
	require.Len(t, quotes, 1)

	q := quotes[0]
	assert.Equal(t, "600000", q.Code)
	assert.Equal(t, "浦发银行", q.Name)
	assert.Equal(t, 5.0, q.ChangePct)
	assert.Equal(t, 12600000.0, q.Amount, "万 -> CNY")
	assert.Equal(t, 1200000.0, q.Volume, "手 -> shares")
	assert.Equal(t, 1.25, q.TurnoverRate)
	assert.Equal(t, 2.1, q.VolumeRatio)
	assert.Equal(t, 9.0, q.Amplitude)
	assert.InDelta(t, 3000.5e8, q.FloatMarketCap, 1)
}

func TestFetch(t *testing.T) {
	encoded, err := simplifiedchinese.GBK.NewEncoder().String(fixture())
	require.NoError(t, err)

	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/q="))
		w.Write([]byte(encoded))
	}))
	defer server.Close()

	codes := staticCodes{"sh600000", "sz000004", "sz000001"}
	snap, err := newTestClient(server.URL, codes, 2).Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
	assert.Equal(t, contracts.SourceTencent, snap.Source)
	assert.True(t, snap.Has(contracts.ColTurnoverRate))
	assert.True(t, snap.Has(contracts.ColVolumeRatio))
	assert.False(t, snap.Has(contracts.ColIndustry))
	assert.Len(t, snap.Quotes, 2)
	assert.Equal(t, "浦发银行", snap.Quotes[0].Name)
}

func TestFetchAllFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, staticCodes{"sh600000"}, 10).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 1 batches failed")
}

func TestFetchEmptyCodes(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1", staticCodes{}, 10).Fetch(context.Background())
	assert.Error(t, err)
}
