package query

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/go-errors/errors"
)

// Loki 兼容接口路径
const (
	lokiInstantPath = "/loki/api/v1/query"
	lokiRangePath   = "/loki/api/v1/query_range"
)

// LokiValue 单个日志条目对 [时间戳, 内容]。
// 流式结果的时间戳是纳秒数字字符串，即时向量结果是秒数值
type LokiValue struct {
	Timestamp float64
	Text      string
}

func (v *LokiValue) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &v.Timestamp); err != nil {
		var raw string
		if err := json.Unmarshal(pair[0], &raw); err != nil {
			return err
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		v.Timestamp = n
	}
	return json.Unmarshal(pair[1], &v.Text)
}

// LokiResult 单个日志流；标签字段名随结果类型在 stream 与 metric 之间变化
type LokiResult struct {
	Stream map[string]string `json:"stream"`
	Metric map[string]string `json:"metric"`
	Value  *LokiValue        `json:"value"`
	Values []LokiValue       `json:"values"`
}

// Labels 流标签集
func (r *LokiResult) Labels() map[string]string {
	if r.Stream != nil {
		return r.Stream
	}
	return r.Metric
}

// LokiData Loki 响应体中的 data 字段
type LokiData struct {
	ResultType string       `json:"resultType"`
	Result     []LokiResult `json:"result"`
}

type lokiEnvelope struct {
	Status string   `json:"status"`
	Data   LokiData `json:"data"`
}

func (c *Client) queryLoki(ctx context.Context, req Request) (*LokiData, error) {
	params := url.Values{}
	params.Set("query", req.Query)
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}
	var endpoint string
	if req.Kind == KindLogsRange {
		endpoint = req.Source + lokiRangePath
		params.Set("end", strconv.FormatInt(req.Span.End.Unix(), 10))
		params.Set("since", strconv.FormatInt(req.Span.Start.Unix(), 10))
		params.Set("step", strconv.FormatInt(int64(req.Span.Step/time.Second), 10))
	} else {
		endpoint = req.Source + lokiInstantPath
	}
	body, err := c.get(ctx, req.Source, endpoint+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	var envelope lokiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &UpstreamError{Kind: UpstreamMalformedBody, Source: req.Source, Err: errors.New(err)}
	}
	if envelope.Status != "success" {
		return nil, &UpstreamError{
			Kind:   UpstreamMalformedBody,
			Source: req.Source,
			Err:    errors.Errorf("上游返回状态 %q", envelope.Status),
		}
	}
	return &envelope.Data, nil
}
