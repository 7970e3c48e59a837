package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/internal/scheduler"
	"github.com/wonny/tailgame/internal/session"
	"github.com/wonny/tailgame/pkg/logger"
)

var cst = time.FixedZone("CST", 8*3600)

type fakeEngine struct {
	mu       sync.Mutex
	dash     *contracts.Dashboard
	subs     []chan *contracts.Dashboard
	pickErr  error
	history  []contracts.Pick
	cleared  bool
	weights  contracts.Weights
	simulate string
}

func newFakeEngine() *fakeEngine {
	first := &contracts.Pick{
		TradeDate: "2026-03-02", Kind: contracts.PickFirst, Code: "688981", Name: "中芯国际",
		ChangePct: 3, Time: time.Date(2026, 3, 2, 13, 30, 5, 0, cst), Auto: true,
	}
	cand := contracts.ScoredStock{
		Quote:        contracts.Quote{Code: "688981", Name: "中芯国际", ChangePct: 3, Amount: 5e8, TurnoverRate: 5},
		RiskAdjusted: 0.75,
		Rank:         1,
	}
	second := contracts.ScoredStock{
		Quote:        contracts.Quote{Code: "603986", Name: "兆易创新", ChangePct: -1, Amount: 3e8, TurnoverRate: 2},
		RiskAdjusted: 0.25,
		Rank:         2,
	}
	return &fakeEngine{dash: &contracts.Dashboard{
		Now:            time.Date(2026, 3, 2, 13, 35, 0, 0, cst),
		TradeDate:      "2026-03-02",
		Period:         "午盘",
		TradingTime:    true,
		MinutesToClose: -1,
		Phase:          session.PhaseRecommend,
		Windows:        contracts.Windows{FirstStart: "13:30", FirstEnd: "14:00", LockAt: "14:30"},
		Status:         contracts.StatusRealData,
		StatusLabel:    contracts.StatusRealData.Label(),
		Source:         contracts.SourceEastmoney,
		Market:         contracts.MarketStats{Total: 4, Filtered: 2, TotalAmount: 13e8},
		Sectors: []contracts.SectorStrength{
			{Industry: "半导体", AvgChangePct: 2, TotalAmount: 8e8, Count: 2, CapitalShare: 0.6, Strength: 80},
			{Industry: "银行", AvgChangePct: -0.5, TotalAmount: 1e8, Count: 1, CapitalShare: 0.1, Strength: 20},
		},
		Strongest:  "半导体",
		PoolSector: "半导体",
		Candidates: []contracts.ScoredStock{cand, second},
		Candidate:  &cand,
		Profile:    []contracts.FactorScore{{Factor: contracts.FactorChangePct, Value: 3, Score: 100}},
		Weights:    contracts.Weights{contracts.FactorChangePct: 0.3},
		FirstPick:  first,
		Advice:     "可考虑逢低关注",
		Logs:       []contracts.LogEntry{{Stamp: "13:35:00", Event: "数据源", Details: "✅ eastmoney 成功 (共 4 条)"}},
	}}
}

func (f *fakeEngine) Latest() *contracts.Dashboard {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dash
}

func (f *fakeEngine) Subscribe() (<-chan *contracts.Dashboard, func()) {
	ch := make(chan *contracts.Dashboard, 1)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeEngine) publish(dash *contracts.Dashboard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dash = dash
	for _, ch := range f.subs {
		select {
		case ch <- dash:
		default:
		}
	}
}

func (f *fakeEngine) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeEngine) Refresh(context.Context) (*contracts.Dashboard, error) { return f.Latest(), nil }

func (f *fakeEngine) SetFirst(context.Context) (*contracts.Pick, error) {
	if f.pickErr != nil {
		return nil, f.pickErr
	}
	return f.dash.FirstPick, nil
}

func (f *fakeEngine) Lock(context.Context) (*contracts.Pick, error) {
	if f.pickErr != nil {
		return nil, f.pickErr
	}
	p := *f.dash.FirstPick
	p.Kind = contracts.PickFinal
	return &p, nil
}

func (f *fakeEngine) ClearPicks(context.Context) error {
	f.cleared = true
	return nil
}

func (f *fakeEngine) SetWeights(_ context.Context, w contracts.Weights) (*contracts.Dashboard, error) {
	for k := range w {
		if k == "momentum" {
			return nil, fmt.Errorf("unknown factor %q", k)
		}
	}
	f.weights = w
	return f.Latest(), nil
}

func (f *fakeEngine) Simulate(_ context.Context, hour, minute int) (*contracts.Dashboard, error) {
	if hour > 23 {
		return nil, fmt.Errorf("invalid simulated time %02d:%02d", hour, minute)
	}
	f.simulate = fmt.Sprintf("%02d:%02d", hour, minute)
	return f.Latest(), nil
}

func (f *fakeEngine) RealClock(context.Context) (*contracts.Dashboard, error) {
	f.simulate = "real"
	return f.Latest(), nil
}

func (f *fakeEngine) History(_ context.Context, days int) ([]contracts.Pick, error) {
	return f.history, nil
}

func (f *fakeEngine) Cycles(context.Context, int) ([]contracts.CycleSummary, error) {
	return nil, errors.New("database down")
}

func (f *fakeEngine) Logs() []contracts.LogEntry { return f.Latest().Logs }

type fakeJobs struct{}

func (fakeJobs) GetJobStats() map[string]scheduler.JobStats {
	return map[string]scheduler.JobStats{
		"poll_trading": {JobName: "poll_trading", TotalRuns: 3},
		"daily_reset":  {JobName: "daily_reset"},
	}
}

func newTestServer(t *testing.T, engine *fakeEngine) *httptest.Server {
	t.Helper()
	log := logger.Nop()
	page, err := NewPage(engine, log)
	require.NoError(t, err)
	router := NewRouter(NewHandler(engine, fakeJobs{}, log), page, NewStream(engine, log), log)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestDashboardPage(t *testing.T) {
	srv := newTestServer(t, newFakeEngine())

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, "实时数据", doc.Find("#status").Text())
	assert.Equal(t, session.PhaseRecommend, doc.Find("#phase").Text())
	assert.Equal(t, "半导体", doc.Find("#pool").Text())
	assert.Empty(t, strings.TrimSpace(doc.Find("#countdown").Text()))
	assert.Contains(t, doc.Find("#first-pick .code").Text(), "688981")
	assert.Contains(t, doc.Find("#final-pick").Text(), "等待 14:30")
	assert.Equal(t, "可考虑逢低关注", doc.Find("#advice").Text())

	assert.Equal(t, 2, doc.Find("#sectors tbody tr").Length())
	assert.Equal(t, "半导体", doc.Find("#sectors tbody tr").First().Find("td").First().Text())
	assert.Equal(t, "60.0%", doc.Find("#sectors tbody tr").First().Find("td").Eq(3).Text())

	rows := doc.Find("#candidates tbody tr")
	assert.Equal(t, 2, rows.Length())
	assert.Equal(t, "+3.00%", rows.First().Find("td").Eq(3).Text())
	assert.True(t, rows.Eq(1).Find("td").Eq(3).HasClass("down"))
	assert.Equal(t, 1, doc.Find("#logs li").Length())
}

func TestDashboardPageLocked(t *testing.T) {
	engine := newFakeEngine()
	final := *engine.dash.FirstPick
	final.Kind = contracts.PickFinal
	engine.dash.FinalPick = &final
	engine.dash.Locked = true
	engine.dash.Plan = &contracts.TradePlan{Position: "15-25%", StopLoss: -2.5, Note: session.PlanNote}
	engine.dash.Error = "tushare: timeout"
	srv := newTestServer(t, engine)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, doc.Find("#final-pick .locked").Text(), "688981")
	assert.Contains(t, doc.Find("#plan").Text(), "15-25%")
	assert.Contains(t, doc.Find("#plan").Text(), "-2.50%")
	assert.Equal(t, "tushare: timeout", doc.Find("#error").Text())
}

func TestReadEndpoints(t *testing.T) {
	engine := newFakeEngine()
	engine.history = []contracts.Pick{*engine.dash.FirstPick}
	srv := newTestServer(t, engine)

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	_, body = do(t, http.MethodGet, srv.URL+"/api/state", "")
	assert.Equal(t, "real_data", body["status"])
	assert.Equal(t, "2026-03-02", body["trade_date"])

	_, body = do(t, http.MethodGet, srv.URL+"/api/sectors", "")
	assert.Equal(t, "半导体", body["strongest"])
	assert.Len(t, body["sectors"], 2)

	_, body = do(t, http.MethodGet, srv.URL+"/api/candidates?limit=1", "")
	assert.Len(t, body["candidates"], 1)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/candidates?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid limit", body["error"])

	_, body = do(t, http.MethodGet, srv.URL+"/api/picks", "")
	assert.Equal(t, false, body["locked"])
	assert.NotNil(t, body["first"])

	_, body = do(t, http.MethodGet, srv.URL+"/api/picks/history?days=7", "")
	assert.EqualValues(t, 1, body["count"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/picks/history?days=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/cycles", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to retrieve cycles", body["error"])

	_, body = do(t, http.MethodGet, srv.URL+"/api/logs", "")
	assert.Len(t, body["logs"], 1)

	_, body = do(t, http.MethodGet, srv.URL+"/api/jobs", "")
	jobs := body["jobs"].([]interface{})
	require.Len(t, jobs, 2)
	assert.Equal(t, "daily_reset", jobs[0].(map[string]interface{})["job_name"])
}

func TestPickOperations(t *testing.T) {
	engine := newFakeEngine()
	srv := newTestServer(t, engine)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/picks/first", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "688981", body["code"])

	resp, body = do(t, http.MethodPost, srv.URL+"/api/picks/lock", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "final", body["kind"])

	engine.pickErr = session.ErrLocked
	resp, body = do(t, http.MethodPost, srv.URL+"/api/picks/lock", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, session.ErrLocked.Error(), body["error"])

	engine.pickErr = session.ErrNoCandidate
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/picks/first", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	engine.pickErr = errors.New("disk full")
	resp, body = do(t, http.MethodPost, srv.URL+"/api/picks/first", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Pick operation failed", body["error"])

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/picks", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, engine.cleared)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/refresh", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWeightsAndClock(t *testing.T) {
	engine := newFakeEngine()
	srv := newTestServer(t, engine)

	resp, _ := do(t, http.MethodPut, srv.URL+"/api/weights", `{"amount":0.5,"change_pct":0.5}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, contracts.Weights{contracts.FactorAmount: 0.5, contracts.FactorChangePct: 0.5}, engine.weights)

	resp, body := do(t, http.MethodPut, srv.URL+"/api/weights", `{"momentum":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "unknown factor")

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/weights", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/weights", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/clock", `{"mode":"simulated","hour":14,"minute":30}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "14:30", engine.simulate)

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/clock", `{"mode":"simulated","hour":25,"minute":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/clock", `{"mode":"real"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "real", engine.simulate)

	resp, body = do(t, http.MethodPut, srv.URL+"/api/clock", `{"mode":"tomorrow"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "mode must be simulated or real", body["error"])
}

func TestWebsocketStream(t *testing.T) {
	engine := newFakeEngine()
	srv := newTestServer(t, engine)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var first contracts.Dashboard
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "2026-03-02", first.TradeDate)
	assert.Equal(t, contracts.StatusRealData, first.Status)

	require.Eventually(t, func() bool { return engine.subscribers() == 1 }, time.Second, 10*time.Millisecond)

	next := *engine.Latest()
	next.Status = contracts.StatusCached
	engine.publish(&next)

	var pushed contracts.Dashboard
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.Equal(t, contracts.StatusCached, pushed.Status)
}
