package models

// QueryType 查询类型
type QueryType string

const (
	// QueryTypeRange 区间查询，返回时间序列
	QueryTypeRange QueryType = "range"
	// QueryTypeScalar 即时查询，返回单点值
	QueryTypeScalar QueryType = "scalar"
)

// Span 符号化时间窗口，每次请求时重新解析为绝对区间
type Span struct {
	End          string `yaml:"end" json:"end"`                     // "now" 或 RFC3339 时间戳
	Duration     string `yaml:"duration" json:"duration"`           // 窗口长度，如 "1d"
	StepDuration string `yaml:"step_duration" json:"step_duration"` // 采样步长，如 "10min"
}

// Complete 三个字段是否全部给出；部分给出的覆盖整体视为未给出
func (s *Span) Complete() bool {
	return s != nil && s.End != "" && s.Duration != "" && s.StepDuration != ""
}

// PlotMeta 单条曲线的展示配置，原样透传给前端
type PlotMeta struct {
	NameFormat   string `yaml:"name_format" json:"name_format"`
	YAxis        string `yaml:"yaxis" json:"yaxis"`
	Fill         string `yaml:"fill" json:"fill"`
	D3TickFormat string `yaml:"d3_tick_format" json:"d3_tick_format"`
}

// Plot 指标图中的一条查询：数据源、查询模板与展示配置
type Plot struct {
	Source string   `yaml:"source"` // 上游基础地址
	Query  string   `yaml:"query"`  // 查询模板，可包含 ${filters} 占位符
	Config PlotMeta `yaml:"config"`
}

// AxisDefinition y 轴定义，键值原样透传给前端
type AxisDefinition map[string]string

// Graph 指标图
type Graph struct {
	Title             string           `yaml:"title"`
	QueryType         QueryType        `yaml:"query_type"`
	D3TickFormat      string           `yaml:"d3_tick_format"` // 轴刻度格式缺省值
	LegendOrientation string           `yaml:"legend_orientation"`
	YAxes             []AxisDefinition `yaml:"yaxes"`
	Plots             []Plot           `yaml:"plots"`
	Span              *Span            `yaml:"span"`            // 覆盖仪表盘级时间窗口
	FiltersAllowed    bool             `yaml:"filters_allowed"` // 是否接受 URI 过滤器
}

// LogPanel 日志面板
type LogPanel struct {
	Title          string    `yaml:"title"`
	QueryType      QueryType `yaml:"query_type"`
	Source         string    `yaml:"source"`
	Query          string    `yaml:"query"`
	Limit          int       `yaml:"limit"` // 返回日志行数上限，0 表示不限制
	Span           *Span     `yaml:"span"`
	FiltersAllowed bool      `yaml:"filters_allowed"`
}

// Dashboard 仪表盘，配置文件变更时整体替换，单份快照内只读
type Dashboard struct {
	Title  string     `yaml:"title"`
	Graphs []Graph    `yaml:"graphs"`
	Logs   []LogPanel `yaml:"logs"`
	Span   *Span      `yaml:"span"` // 仪表盘级缺省时间窗口
}
