package query

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/go-errors/errors"
)

// Prometheus 兼容接口路径
const (
	promInstantPath = "/api/v1/query"
	promRangePath   = "/api/v1/query_range"
)

// PromPoint 上游采样点，线上格式为 [unix秒, "数值字符串"]
type PromPoint struct {
	Timestamp float64
	Value     float64
}

func (p *PromPoint) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &p.Timestamp); err != nil {
		return err
	}
	var raw string
	if err := json.Unmarshal(pair[1], &raw); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	p.Value = v
	return nil
}

// PromSeries 单条序列；区间结果填充 Values，即时结果填充 Value
type PromSeries struct {
	Metric map[string]string `json:"metric"`
	Values []PromPoint       `json:"values"`
	Value  *PromPoint        `json:"value"`
}

// PromData Prometheus 响应体中的 data 字段
type PromData struct {
	ResultType string          `json:"resultType"`
	Result     json.RawMessage `json:"result"`
}

// Series 将 result 解码为序列列表，适用于 matrix 与 vector 两种结果
func (d *PromData) Series() ([]PromSeries, error) {
	var out []PromSeries
	if err := json.Unmarshal(d.Result, &out); err != nil {
		return nil, errors.New(err)
	}
	return out, nil
}

// ScalarPoint 将 result 解码为单个采样点，适用于 scalar 结果
func (d *PromData) ScalarPoint() (PromPoint, error) {
	var p PromPoint
	if err := json.Unmarshal(d.Result, &p); err != nil {
		return PromPoint{}, errors.New(err)
	}
	return p, nil
}

type promEnvelope struct {
	Status string   `json:"status"`
	Data   PromData `json:"data"`
	Error  string   `json:"error"`
}

func (c *Client) queryProm(ctx context.Context, req Request) (*PromData, error) {
	params := url.Values{}
	params.Set("query", req.Query)
	var endpoint string
	if req.Kind == KindMetricsRange {
		endpoint = req.Source + promRangePath
		params.Set("start", strconv.FormatInt(req.Span.Start.Unix(), 10))
		params.Set("end", strconv.FormatInt(req.Span.End.Unix(), 10))
		params.Set("step", strconv.FormatInt(int64(req.Span.Step/time.Second), 10))
	} else {
		// 即时查询在窗口结束时刻求值
		endpoint = req.Source + promInstantPath
		params.Set("time", strconv.FormatInt(req.Span.End.Unix(), 10))
	}
	body, err := c.get(ctx, req.Source, endpoint+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	var envelope promEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &UpstreamError{Kind: UpstreamMalformedBody, Source: req.Source, Err: errors.New(err)}
	}
	if envelope.Status != "success" {
		return nil, &UpstreamError{
			Kind:   UpstreamMalformedBody,
			Source: req.Source,
			Err:    errors.Errorf("上游返回状态 %q: %s", envelope.Status, envelope.Error),
		}
	}
	return &envelope.Data, nil
}
