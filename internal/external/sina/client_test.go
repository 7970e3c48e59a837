package sina

import (
	"context"
	"errors"
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

type staticCodes struct {
	codes []string
	err   error
}

func (s staticCodes) ListCodes(context.Context) ([]string, error) {
	return s.codes, s.err
}

func newTestClient(baseURL string, codes contracts.CodeLister, batchSize int) *Client {
	cfg := &config.Config{Sources: config.SourcesConfig{HTTPTimeout: 5 * time.Second}}
	hc := httputil.New(cfg, logger.Nop()).DisableRetry()
	return NewClient(hc, logger.Nop(), baseURL, codes, batchSize, 100)
}

func gbk(t *testing.T, s string) string {
	t.Helper()
	out, err := simplifiedchinese.GBK.NewEncoder().String(s)
	require.NoError(t, err)
	return out
}

const payload = `var hq_str_sh600000="浦发银行,10.10,10.00,10.50,10.80,9.90,10.49,10.50,1200000,12600000.000,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,2026-03-02,14:30:00,00";
var hq_str_sz000001="平安银行,5.00,5.00,4.90,5.10,4.90,4.89,4.90,800,3920.500,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,2026-03-02,14:30:00,00";
var hq_str_sz000004="";
var hq_str_sh600001="停牌,0.00,8.00,0.00,0.00,0.00,0,0,0,0.000,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,2026-03-02,14:30:00,03";
`

func TestParse(t *testing.T) {
	quotes := Parse(payload)
	require.Len(t, quotes, 2)

	spdb := quotes[0]
	assert.Equal(t, "600000", spdb.Code)
	assert.Equal(t, "浦发银行", spdb.Name)
	assert.InDelta(t, 5.0, spdb.ChangePct, 1e-9)
	assert.InDelta(t, 9.0, spdb.Amplitude, 1e-9)
	assert.Equal(t, 12600000.0, spdb.Amount)
	assert.Equal(t, contracts.UnknownIndustry, spdb.Industry)

	assert.Equal(t, "000001", quotes[1].Code)
	assert.InDelta(t, -2.0, quotes[1].ChangePct, 1e-9)
}

func TestFetchBatchesAndDecodesGBK(t *testing.T) {
	encoded := gbk(t, payload)
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, referer, r.Header.Get("Referer"))
		assert.True(t, strings.HasPrefix(r.URL.Path, "/list="))

		w.Header().Set("Content-Type", "application/javascript; charset=GBK")
		w.Write([]byte(encoded))
	}))
	defer server.Close()

	codes := staticCodes{codes: []string{"sh600000", "sz000001", "sz000004"}}
	snap, err := newTestClient(server.URL, codes, 2).Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&requests), "3 codes in batches of 2")
	assert.Equal(t, contracts.SourceSina, snap.Source)
	assert.False(t, snap.Has(contracts.ColTurnoverRate))
	// every batch answers with the same fixture
	assert.Len(t, snap.Quotes, 4)
	assert.Equal(t, "浦发银行", snap.Quotes[0].Name)
}

func TestFetchPartialFailure(t *testing.T) {
	encoded := gbk(t, payload)
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(encoded))
	}))
	defer server.Close()

	codes := staticCodes{codes: []string{"sh600000", "sz000001"}}
	snap, err := newTestClient(server.URL, codes, 1).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Quotes, 2)
}

func TestFetchAllBatchesFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	codes := staticCodes{codes: []string{"sh600000"}}
	_, err := newTestClient(server.URL, codes, 1).Fetch(context.Background())

	var statusErr *httputil.StatusError
	assert.True(t, errors.As(err, &statusErr))
}

func TestFetchCodeListError(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1", staticCodes{err: errors.New("down")}, 10).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list codes")

	_, err = newTestClient("http://127.0.0.1:1", staticCodes{}, 10).Fetch(context.Background())
	assert.Error(t, err)
}

func TestChunk(t *testing.T) {
	codes := []string{"a", "b", "c", "d", "e"}
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, chunk(codes, 2))
	assert.Len(t, chunk(nil, 3), 0)
}
