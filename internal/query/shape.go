package query

import (
	"sort"

	"github.com/dushixiang/kanban/internal/models"

	"github.com/go-errors/errors"
)

// Prometheus 结果类型
const (
	resultTypeMatrix = "matrix"
	resultTypeVector = "vector"
	resultTypeScalar = "scalar"
)

// ShapeMetrics 将一次指标查询的原始负载归一化为对应形态的结果。
// 形态由查询类型决定：区间查询归一化为 Series，即时查询归一化为 Scalar；
// filters 在此处独立做一次后置排除，标签取值不在允许集合内的序列被剔除
func ShapeMetrics(data *PromData, kind Kind, meta models.PlotMeta, filters map[string][]string) (PlotList, error) {
	if kind == KindMetricsInstant {
		entries, err := metricScalars(data, meta)
		if err != nil {
			return PlotList{}, err
		}
		kept := entries[:0]
		for _, e := range entries {
			if excluded(e.Labels, filters) {
				continue
			}
			kept = append(kept, e)
		}
		return NewScalarList(kept), nil
	}
	entries, err := metricSeries(data, meta)
	if err != nil {
		return PlotList{}, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if excluded(e.Labels, filters) {
			continue
		}
		kept = append(kept, e)
	}
	return NewSeriesList(kept), nil
}

// metricSeries 按结果类型提取时间序列
func metricSeries(data *PromData, meta models.PlotMeta) ([]SeriesEntry, error) {
	switch data.ResultType {
	case resultTypeMatrix:
		series, err := data.Series()
		if err != nil {
			return nil, err
		}
		entries := make([]SeriesEntry, 0, len(series))
		for _, s := range series {
			points := make([]DataPoint, 0, len(s.Values))
			for _, v := range s.Values {
				points = append(points, DataPoint{Timestamp: v.Timestamp, Value: v.Value})
			}
			entries = append(entries, SeriesEntry{Labels: s.Metric, Meta: meta, Points: points})
		}
		return entries, nil
	case resultTypeVector:
		series, err := data.Series()
		if err != nil {
			return nil, err
		}
		entries := make([]SeriesEntry, 0, len(series))
		for _, s := range series {
			if s.Value == nil {
				continue
			}
			entries = append(entries, SeriesEntry{
				Labels: s.Metric,
				Meta:   meta,
				Points: []DataPoint{{Timestamp: s.Value.Timestamp, Value: s.Value.Value}},
			})
		}
		return entries, nil
	case resultTypeScalar:
		p, err := data.ScalarPoint()
		if err != nil {
			return nil, err
		}
		return []SeriesEntry{{
			Labels: map[string]string{},
			Meta:   meta,
			Points: []DataPoint{{Timestamp: p.Timestamp, Value: p.Value}},
		}}, nil
	default:
		return nil, errors.Errorf("未知的指标结果类型 %q", data.ResultType)
	}
}

// metricScalars 按结果类型提取即时值；matrix 结果取每条序列最新的采样点
func metricScalars(data *PromData, meta models.PlotMeta) ([]ScalarEntry, error) {
	switch data.ResultType {
	case resultTypeVector:
		series, err := data.Series()
		if err != nil {
			return nil, err
		}
		entries := make([]ScalarEntry, 0, len(series))
		for _, s := range series {
			if s.Value == nil {
				continue
			}
			entries = append(entries, ScalarEntry{
				Labels: s.Metric,
				Meta:   meta,
				Point:  DataPoint{Timestamp: s.Value.Timestamp, Value: s.Value.Value},
			})
		}
		return entries, nil
	case resultTypeScalar:
		p, err := data.ScalarPoint()
		if err != nil {
			return nil, err
		}
		return []ScalarEntry{{
			Labels: map[string]string{},
			Meta:   meta,
			Point:  DataPoint{Timestamp: p.Timestamp, Value: p.Value},
		}}, nil
	case resultTypeMatrix:
		series, err := data.Series()
		if err != nil {
			return nil, err
		}
		entries := make([]ScalarEntry, 0, len(series))
		for _, s := range series {
			if len(s.Values) == 0 {
				continue
			}
			latest := s.Values[len(s.Values)-1]
			entries = append(entries, ScalarEntry{
				Labels: s.Metric,
				Meta:   meta,
				Point:  DataPoint{Timestamp: latest.Timestamp, Value: latest.Value},
			})
		}
		return entries, nil
	default:
		return nil, errors.Errorf("未知的指标结果类型 %q", data.ResultType)
	}
}

// ShapeLogs 将一次日志查询的原始负载归一化。
// 区间查询归一化为 Stream（纳秒时间戳），即时查询归一化为 StreamInstant，
// 取每个标签集最新的一行并把纳秒时间戳换算为秒
func ShapeLogs(data *LokiData, kind Kind, filters map[string][]string) (PlotList, error) {
	if kind == KindLogsInstant {
		entries := make([]StreamInstantEntry, 0, len(data.Result))
		for _, r := range data.Result {
			labels := r.Labels()
			if excluded(labels, filters) {
				continue
			}
			var line LogLine
			switch {
			case r.Value != nil:
				line = LogLine{Timestamp: r.Value.Timestamp, Line: r.Value.Text}
			case len(r.Values) > 0:
				latest := r.Values[0]
				for _, v := range r.Values[1:] {
					if v.Timestamp > latest.Timestamp {
						latest = v
					}
				}
				line = LogLine{Timestamp: latest.Timestamp / 1e9, Line: latest.Text}
			default:
				continue
			}
			entries = append(entries, StreamInstantEntry{Labels: labels, Line: line})
		}
		return NewStreamInstantList(entries), nil
	}
	entries := make([]StreamEntry, 0, len(data.Result))
	for _, r := range data.Result {
		labels := r.Labels()
		if excluded(labels, filters) {
			continue
		}
		lines := make([]LogLine, 0, len(r.Values))
		for _, v := range r.Values {
			lines = append(lines, LogLine{Timestamp: v.Timestamp, Line: v.Text})
		}
		sort.Slice(lines, func(i, j int) bool { return lines[i].Timestamp < lines[j].Timestamp })
		entries = append(entries, StreamEntry{Labels: labels, Lines: lines})
	}
	return NewStreamList(entries), nil
}

// excluded 标签取值是否被过滤器排除；序列不含过滤标签时不受影响
func excluded(labels map[string]string, filters map[string][]string) bool {
	for label, allowed := range filters {
		value, ok := labels[label]
		if !ok {
			continue
		}
		permitted := false
		for _, v := range allowed {
			if v == value {
				permitted = true
				break
			}
		}
		if !permitted {
			return true
		}
	}
	return false
}

// BuildQueryData 组装指标图响应；
// 每个 y 轴的刻度格式缺失时以图级 d3_tick_format 补全
func BuildQueryData(graph *models.Graph, plots []PlotList) *QueryData {
	yaxes := make([]models.AxisDefinition, 0, len(graph.YAxes))
	for _, axis := range graph.YAxes {
		out := make(models.AxisDefinition, len(axis)+1)
		for k, v := range axis {
			out[k] = v
		}
		if out["d3_tick_format"] == "" && graph.D3TickFormat != "" {
			out["d3_tick_format"] = graph.D3TickFormat
		}
		yaxes = append(yaxes, out)
	}
	if plots == nil {
		plots = []PlotList{}
	}
	return &QueryData{
		YAxes:             yaxes,
		LegendOrientation: graph.LegendOrientation,
		Plots:             plots,
	}
}
