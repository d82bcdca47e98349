package query

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dushixiang/kanban/internal/timespan"

	"github.com/go-errors/errors"
)

// Request 单个 plot 的上游查询请求
type Request struct {
	Source string // 上游基础地址
	Query  string // 替换过占位符的最终查询语句
	Kind   Kind
	Span   timespan.Absolute
	Limit  int // 日志行数上限，0 表示不传
}

// Client 上游查询客户端，指标与日志两种协议共用同一个 HTTP 传输。
// 不做任何重试，单次调用受请求级截止时间约束。
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient 创建上游查询客户端
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

// Do 执行单个上游查询。
// 失败以 *UpstreamError 返回，只影响当前 plot，不影响同批次其它请求。
func (c *Client) Do(ctx context.Context, req Request) (*RawPayload, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if req.Kind.IsLogs() {
		data, err := c.queryLoki(ctx, req)
		if err != nil {
			return nil, err
		}
		return &RawPayload{Loki: data}, nil
	}
	data, err := c.queryProm(ctx, req)
	if err != nil {
		return nil, err
	}
	return &RawPayload{Prom: data}, nil
}

// get 发起 GET 请求并读取响应体，按失败原因归类错误
func (c *Client) get(ctx context.Context, source, rawURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &UpstreamError{Kind: UpstreamConnectionFailed, Source: source, Err: errors.New(err)}
	}
	httpReq.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Kind: classifyTransportError(err), Source: source, Err: errors.New(err)}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Kind: classifyTransportError(err), Source: source, Err: errors.New(err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Kind: UpstreamBadStatus, Source: source, Status: resp.StatusCode}
	}
	return body, nil
}

// classifyTransportError 区分超时与连接失败
func classifyTransportError(err error) UpstreamKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return UpstreamTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return UpstreamTimeout
	}
	return UpstreamConnectionFailed
}
