package query

import (
	"encoding/json"

	"github.com/dushixiang/kanban/internal/models"
)

// Kind 上游查询协议形态
type Kind int

const (
	// KindMetricsRange 指标区间查询，返回按标签集分组的时间序列
	KindMetricsRange Kind = iota
	// KindMetricsInstant 指标即时查询，在窗口结束时刻求值
	KindMetricsInstant
	// KindLogsRange 日志区间查询，返回纳秒时间戳的日志行序列
	KindLogsRange
	// KindLogsInstant 日志即时查询，返回每个标签集最新的一行日志
	KindLogsInstant
)

// IsLogs 是否属于日志协议族
func (k Kind) IsLogs() bool {
	return k == KindLogsRange || k == KindLogsInstant
}

// DataPoint 指标数据点，时间戳单位为秒
type DataPoint struct {
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
}

// LogLine 日志行；Stream 中时间戳为纳秒，StreamInstant 中为秒
type LogLine struct {
	Timestamp float64 `json:"timestamp"`
	Line      string  `json:"line"`
}

// SeriesEntry 一条时间序列：标签集、展示配置、按时间排序的数据点
type SeriesEntry struct {
	Labels map[string]string
	Meta   models.PlotMeta
	Points []DataPoint
}

// MarshalJSON 编码为 [labels, meta, points] 三元组
func (e SeriesEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Labels, e.Meta, e.Points})
}

// ScalarEntry 一个即时值：标签集、展示配置、单个数据点
type ScalarEntry struct {
	Labels map[string]string
	Meta   models.PlotMeta
	Point  DataPoint
}

func (e ScalarEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Labels, e.Meta, e.Point})
}

// StreamEntry 一条日志流：标签集、按时间排序的日志行
type StreamEntry struct {
	Labels map[string]string
	Lines  []LogLine
}

func (e StreamEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Labels, e.Lines})
}

// StreamInstantEntry 每个标签集最新的一行日志
type StreamInstantEntry struct {
	Labels map[string]string
	Line   LogLine
}

func (e StreamInstantEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Labels, e.Line})
}

type resultKind int

const (
	kindSeries resultKind = iota
	kindScalar
	kindStream
	kindStreamInstant
)

// PlotList 单个 plot 的归一化结果。
// 四种形态是封闭的，有且仅有一种被填充，编码时以形态名作为唯一的键。
type PlotList struct {
	kind          resultKind
	series        []SeriesEntry
	scalar        []ScalarEntry
	stream        []StreamEntry
	streamInstant []StreamInstantEntry
}

// NewSeriesList 构造 Series 形态的结果
func NewSeriesList(entries []SeriesEntry) PlotList {
	if entries == nil {
		entries = []SeriesEntry{}
	}
	return PlotList{kind: kindSeries, series: entries}
}

// NewScalarList 构造 Scalar 形态的结果
func NewScalarList(entries []ScalarEntry) PlotList {
	if entries == nil {
		entries = []ScalarEntry{}
	}
	return PlotList{kind: kindScalar, scalar: entries}
}

// NewStreamList 构造 Stream 形态的结果
func NewStreamList(entries []StreamEntry) PlotList {
	if entries == nil {
		entries = []StreamEntry{}
	}
	return PlotList{kind: kindStream, stream: entries}
}

// NewStreamInstantList 构造 StreamInstant 形态的结果
func NewStreamInstantList(entries []StreamInstantEntry) PlotList {
	if entries == nil {
		entries = []StreamInstantEntry{}
	}
	return PlotList{kind: kindStreamInstant, streamInstant: entries}
}

// Series 返回 Series 形态的条目，仅用于检视
func (p PlotList) Series() []SeriesEntry { return p.series }

// Scalar 返回 Scalar 形态的条目，仅用于检视
func (p PlotList) Scalar() []ScalarEntry { return p.scalar }

// Stream 返回 Stream 形态的条目，仅用于检视
func (p PlotList) Stream() []StreamEntry { return p.stream }

// StreamInstant 返回 StreamInstant 形态的条目，仅用于检视
func (p PlotList) StreamInstant() []StreamInstantEntry { return p.streamInstant }

func (p PlotList) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case kindScalar:
		return json.Marshal(map[string][]ScalarEntry{"Scalar": p.scalar})
	case kindStream:
		return json.Marshal(map[string][]StreamEntry{"Stream": p.stream})
	case kindStreamInstant:
		return json.Marshal(map[string][]StreamInstantEntry{"StreamInstant": p.streamInstant})
	default:
		return json.Marshal(map[string][]SeriesEntry{"Series": p.series})
	}
}

// QueryData 指标图的响应数据
type QueryData struct {
	YAxes             []models.AxisDefinition `json:"yaxes"`
	LegendOrientation string                  `json:"legend_orientation,omitempty"`
	Plots             []PlotList              `json:"plots"`
}

// LogData 日志面板的响应数据
type LogData struct {
	Lines PlotList `json:"lines"`
}

// Payload 顶层响应信封，Metrics 与 Logs 互斥，从不同时填充
type Payload struct {
	Metrics *QueryData `json:"Metrics,omitempty"`
	Logs    *LogData   `json:"Logs,omitempty"`
}

// NewMetricsPayload 构造指标响应
func NewMetricsPayload(data *QueryData) *Payload {
	return &Payload{Metrics: data}
}

// NewLogsPayload 构造日志响应
func NewLogsPayload(lines PlotList) *Payload {
	return &Payload{Logs: &LogData{Lines: lines}}
}

// RawPayload 解码后的上游原始负载，两种协议族有且仅有一种被填充
type RawPayload struct {
	Prom *PromData
	Loki *LokiData
}
