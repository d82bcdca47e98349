package service

import (
	"context"
	"time"

	"github.com/dushixiang/kanban/internal/models"
	"github.com/dushixiang/kanban/internal/query"
	"github.com/dushixiang/kanban/internal/timespan"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// RequestOptions 单次渲染请求携带的可选参数
type RequestOptions struct {
	// Span 请求级时间窗口覆盖；end/duration/step_duration 三者齐全才生效
	Span *models.Span
	// Filters filter-<label> 查询参数解析出的标签过滤器
	Filters map[string][]string
}

// QueryService 单次请求的查询编排：
// 时间解析 → 构造查询 → 并发分发 → 归一化组装。
// 除只读的配置快照外不依赖任何请求间共享状态，可安全并发
type QueryService struct {
	logger *zap.Logger
	client *query.Client
}

// NewQueryService 创建查询编排服务
func NewQueryService(logger *zap.Logger, client *query.Client) *QueryService {
	return &QueryService{
		logger: logger,
		client: client,
	}
}

// QueryGraph 执行指标图的全部 plot 查询并组装响应。
// 单个 plot 的上游失败只记录日志并从结果中剔除，不影响整个请求；
// 只有时间窗口解析失败才会让请求整体失败
func (s *QueryService) QueryGraph(ctx context.Context, dash *models.Dashboard, graph *models.Graph, opts RequestOptions) (*query.Payload, error) {
	span, err := resolveSpan(opts.Span, graph.Span, dash.Span)
	if err != nil {
		return nil, err
	}
	filters := opts.Filters
	if !graph.FiltersAllowed {
		filters = nil
	}
	kind := query.KindMetricsRange
	if graph.QueryType == models.QueryTypeScalar {
		kind = query.KindMetricsInstant
	}

	requests := make([]query.Request, 0, len(graph.Plots))
	for _, plot := range graph.Plots {
		requests = append(requests, query.Request{
			Source: plot.Source,
			Query:  query.BuildQuery(plot.Query, filters, graph.FiltersAllowed),
			Kind:   kind,
			Span:   span,
		})
	}
	settled := s.dispatch(ctx, requests)

	plots := make([]query.PlotList, 0, len(settled))
	for i, result := range settled {
		if result.err != nil {
			s.logger.Warn("上游查询失败，剔除该 plot",
				zap.String("dashboard", dash.Title),
				zap.String("graph", graph.Title),
				zap.Int("plot", i),
				zap.String("source", graph.Plots[i].Source),
				zap.Error(result.err))
			continue
		}
		shaped, err := query.ShapeMetrics(result.payload.Prom, kind, graph.Plots[i].Config, filters)
		if err != nil {
			s.logger.Warn("上游响应归一化失败，剔除该 plot",
				zap.String("dashboard", dash.Title),
				zap.String("graph", graph.Title),
				zap.Int("plot", i),
				zap.String("source", graph.Plots[i].Source),
				zap.Error(err))
			continue
		}
		plots = append(plots, shaped)
	}
	return query.NewMetricsPayload(query.BuildQueryData(graph, plots)), nil
}

// QueryLog 执行日志面板查询并组装响应。
// 上游失败时返回对应形态的空结果，与指标图的部分失败策略一致
func (s *QueryService) QueryLog(ctx context.Context, dash *models.Dashboard, panel *models.LogPanel, opts RequestOptions) (*query.Payload, error) {
	span, err := resolveSpan(opts.Span, panel.Span, dash.Span)
	if err != nil {
		return nil, err
	}
	filters := opts.Filters
	if !panel.FiltersAllowed {
		filters = nil
	}
	kind := query.KindLogsRange
	if panel.QueryType == models.QueryTypeScalar {
		kind = query.KindLogsInstant
	}

	requests := []query.Request{{
		Source: panel.Source,
		Query:  query.BuildQuery(panel.Query, filters, panel.FiltersAllowed),
		Kind:   kind,
		Span:   span,
		Limit:  panel.Limit,
	}}
	settled := s.dispatch(ctx, requests)

	if settled[0].err != nil {
		s.logger.Warn("日志上游查询失败，返回空结果",
			zap.String("dashboard", dash.Title),
			zap.String("panel", panel.Title),
			zap.String("source", panel.Source),
			zap.Error(settled[0].err))
		return query.NewLogsPayload(emptyLogList(kind)), nil
	}
	shaped, err := query.ShapeLogs(settled[0].payload.Loki, kind, filters)
	if err != nil {
		s.logger.Warn("日志响应归一化失败，返回空结果",
			zap.String("dashboard", dash.Title),
			zap.String("panel", panel.Title),
			zap.String("source", panel.Source),
			zap.Error(err))
		return query.NewLogsPayload(emptyLogList(kind)), nil
	}
	return query.NewLogsPayload(shaped), nil
}

type settledResult struct {
	payload *query.RawPayload
	err     error
}

// dispatch 并发分发全部上游请求并等待全部完成。
// 结果按请求顺序写入固定位置，输出顺序与配置中的 plot 顺序一致，
// 与上游完成顺序无关；单个失败从不取消同批次的其它请求
func (s *QueryService) dispatch(ctx context.Context, requests []query.Request) []settledResult {
	results := make([]settledResult, len(requests))
	var wg conc.WaitGroup
	for i := range requests {
		i := i
		wg.Go(func() {
			payload, err := s.client.Do(ctx, requests[i])
			results[i] = settledResult{payload: payload, err: err}
		})
	}
	wg.Wait()
	return results
}

// resolveSpan 选取生效的时间窗口并解析；墙钟时间只采样一次
func resolveSpan(override *models.Span, fallbacks ...*models.Span) (timespan.Absolute, error) {
	return timespan.Resolve(timespan.Pick(override, fallbacks...), time.Now())
}

func emptyLogList(kind query.Kind) query.PlotList {
	if kind == query.KindLogsInstant {
		return query.NewStreamInstantList(nil)
	}
	return query.NewStreamList(nil)
}
