package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dushixiang/kanban/internal/models"
	"github.com/dushixiang/kanban/internal/query"

	"go.uber.org/zap"
)

const matrixBody = `{"status": "success", "data": {"resultType": "matrix", "result": [
	{"metric": {"instance": "a"}, "values": [[1700000000, "1"]]}
]}}`

func newTestService() *QueryService {
	return NewQueryService(zap.NewNop(), query.NewClient(5*time.Second))
}

func promUpstream(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func testDashboard(graph models.Graph) *models.Dashboard {
	return &models.Dashboard{
		Title:  "测试仪表盘",
		Graphs: []models.Graph{graph},
		Span:   &models.Span{End: "now", Duration: "1h", StepDuration: "1min"},
	}
}

func TestQueryGraphPartialFailure(t *testing.T) {
	ok := promUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(matrixBody))
	})
	bad := promUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	graph := models.Graph{
		Title:     "部分失败",
		QueryType: models.QueryTypeRange,
		Plots: []models.Plot{
			{Source: ok.URL, Query: "up"},
			{Source: bad.URL, Query: "up"},
			{Source: ok.URL, Query: "up"},
		},
	}
	dash := testDashboard(graph)

	payload, err := newTestService().QueryGraph(context.Background(), dash, &dash.Graphs[0], RequestOptions{})
	if err != nil {
		t.Fatalf("单个上游失败不应导致请求失败: %v", err)
	}
	if payload.Metrics == nil {
		t.Fatal("应返回指标响应")
	}
	// 3 个 plot 中 1 个失败，结果应剩 2 个
	if len(payload.Metrics.Plots) != 2 {
		t.Errorf("plots 应有 2 个条目, 实际 %d", len(payload.Metrics.Plots))
	}
}

func TestQueryGraphAllFailed(t *testing.T) {
	bad := promUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	graph := models.Graph{
		Title:     "全部失败",
		QueryType: models.QueryTypeRange,
		Plots: []models.Plot{
			{Source: bad.URL, Query: "up"},
			{Source: bad.URL, Query: "up"},
		},
	}
	dash := testDashboard(graph)

	payload, err := newTestService().QueryGraph(context.Background(), dash, &dash.Graphs[0], RequestOptions{})
	if err != nil {
		t.Fatalf("上游全部失败也不应导致请求失败: %v", err)
	}
	if len(payload.Metrics.Plots) != 0 {
		t.Errorf("plots 应为空列表, 实际 %d 个条目", len(payload.Metrics.Plots))
	}
}

func TestQueryGraphOrderPreserved(t *testing.T) {
	slow := promUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte(`{"status": "success", "data": {"resultType": "matrix", "result": [
			{"metric": {"plot": "第一个"}, "values": [[1700000000, "1"]]}
		]}}`))
	})
	fast := promUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "success", "data": {"resultType": "matrix", "result": [
			{"metric": {"plot": "第二个"}, "values": [[1700000000, "2"]]}
		]}}`))
	})

	graph := models.Graph{
		Title:     "顺序",
		QueryType: models.QueryTypeRange,
		Plots: []models.Plot{
			{Source: slow.URL, Query: "up"},
			{Source: fast.URL, Query: "up"},
		},
	}
	dash := testDashboard(graph)

	payload, err := newTestService().QueryGraph(context.Background(), dash, &dash.Graphs[0], RequestOptions{})
	if err != nil {
		t.Fatalf("QueryGraph() 失败: %v", err)
	}
	plots := payload.Metrics.Plots
	if len(plots) != 2 {
		t.Fatalf("plots 应有 2 个条目, 实际 %d", len(plots))
	}
	// 输出顺序必须与配置中的 plot 顺序一致，与上游完成顺序无关
	if plots[0].Series()[0].Labels["plot"] != "第一个" {
		t.Errorf("第一个 plot 应来自慢速上游, 实际 %v", plots[0].Series()[0].Labels)
	}
	if plots[1].Series()[0].Labels["plot"] != "第二个" {
		t.Errorf("第二个 plot 应来自快速上游, 实际 %v", plots[1].Series()[0].Labels)
	}
}

func TestQueryGraphFilters(t *testing.T) {
	var gotQuery string
	upstream := promUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		w.Write([]byte(matrixBody))
	})

	graph := models.Graph{
		Title:          "过滤器",
		QueryType:      models.QueryTypeRange,
		FiltersAllowed: true,
		Plots: []models.Plot{
			{Source: upstream.URL, Query: "up{${filters}}"},
		},
	}
	dash := testDashboard(graph)
	opts := RequestOptions{Filters: map[string][]string{"instance": {"a", "b"}}}

	if _, err := newTestService().QueryGraph(context.Background(), dash, &dash.Graphs[0], opts); err != nil {
		t.Fatalf("QueryGraph() 失败: %v", err)
	}
	if gotQuery != `up{instance=~"a|b"}` {
		t.Errorf("上游收到的查询 = %q", gotQuery)
	}
}

func TestQueryGraphFiltersNotAllowed(t *testing.T) {
	var gotQuery string
	upstream := promUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		w.Write([]byte(matrixBody))
	})

	graph := models.Graph{
		Title:     "过滤器未授权",
		QueryType: models.QueryTypeRange,
		Plots: []models.Plot{
			{Source: upstream.URL, Query: "up{${filters}}"},
		},
	}
	dash := testDashboard(graph)
	opts := RequestOptions{Filters: map[string][]string{"instance": {"a"}}}

	if _, err := newTestService().QueryGraph(context.Background(), dash, &dash.Graphs[0], opts); err != nil {
		t.Fatalf("QueryGraph() 失败: %v", err)
	}
	if gotQuery != "up{}" {
		t.Errorf("未授权过滤器时占位符应替换为空, 实际 %q", gotQuery)
	}
}

func TestQueryGraphInvalidSpan(t *testing.T) {
	graph := models.Graph{Title: "非法窗口", QueryType: models.QueryTypeRange}
	dash := testDashboard(graph)
	opts := RequestOptions{
		Span: &models.Span{End: "now", Duration: "1 light year", StepDuration: "1h"},
	}

	if _, err := newTestService().QueryGraph(context.Background(), dash, &dash.Graphs[0], opts); err == nil {
		t.Error("非法持续时间应让请求整体失败")
	}
}

func TestQueryLog(t *testing.T) {
	var gotLimit string
	upstream := promUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		w.Write([]byte(`{"status": "success", "data": {"resultType": "streams", "result": [
			{"stream": {"app": "web"}, "values": [["1700000000000000000", "一行日志"]]}
		]}}`))
	})

	panel := models.LogPanel{
		Title:     "日志",
		QueryType: models.QueryTypeRange,
		Source:    upstream.URL,
		Query:     `{app="web"}`,
		Limit:     50,
	}
	dash := &models.Dashboard{
		Title: "测试仪表盘",
		Logs:  []models.LogPanel{panel},
		Span:  &models.Span{End: "now", Duration: "1h", StepDuration: "1min"},
	}

	payload, err := newTestService().QueryLog(context.Background(), dash, &dash.Logs[0], RequestOptions{})
	if err != nil {
		t.Fatalf("QueryLog() 失败: %v", err)
	}
	if payload.Logs == nil || payload.Metrics != nil {
		t.Fatal("日志面板应只返回 Logs 响应")
	}
	if gotLimit != "50" {
		t.Errorf("limit 参数 = %q", gotLimit)
	}
	stream := payload.Logs.Lines.Stream()
	if len(stream) != 1 || stream[0].Lines[0].Line != "一行日志" {
		t.Errorf("日志流不符: %+v", stream)
	}
}

func TestQueryLogUpstreamFailure(t *testing.T) {
	bad := promUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	})

	panel := models.LogPanel{
		Title:     "日志失败",
		QueryType: models.QueryTypeRange,
		Source:    bad.URL,
		Query:     `{app="web"}`,
	}
	dash := &models.Dashboard{
		Title: "测试仪表盘",
		Logs:  []models.LogPanel{panel},
		Span:  &models.Span{End: "now", Duration: "1h", StepDuration: "1min"},
	}

	payload, err := newTestService().QueryLog(context.Background(), dash, &dash.Logs[0], RequestOptions{})
	if err != nil {
		t.Fatalf("上游失败不应导致请求失败: %v", err)
	}
	if len(payload.Logs.Lines.Stream()) != 0 {
		t.Errorf("失败时应返回空结果, 实际 %+v", payload.Logs.Lines.Stream())
	}
}
