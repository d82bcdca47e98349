package query

import "fmt"

// UpstreamKind 上游失败分类
type UpstreamKind string

const (
	// UpstreamTimeout 单次调用超出请求级截止时间
	UpstreamTimeout UpstreamKind = "timeout"
	// UpstreamConnectionFailed 连接建立或传输失败
	UpstreamConnectionFailed UpstreamKind = "connection_failed"
	// UpstreamBadStatus 非 2xx 响应
	UpstreamBadStatus UpstreamKind = "bad_status"
	// UpstreamMalformedBody 响应体无法解码
	UpstreamMalformedBody UpstreamKind = "malformed_body"
)

// UpstreamError 单个上游请求的失败。
// 隔离在所属 plot 内，从不升级为请求级失败，也不影响同批次的其它请求。
type UpstreamError struct {
	Kind   UpstreamKind
	Source string
	Status int // 仅 bad_status 时有值
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Kind == UpstreamBadStatus {
		return fmt.Sprintf("上游 %s 返回状态码 %d", e.Source, e.Status)
	}
	return fmt.Sprintf("上游 %s 请求失败(%s): %v", e.Source, e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
