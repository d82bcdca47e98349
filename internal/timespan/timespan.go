package timespan

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dushixiang/kanban/internal/models"
)

// EndNow 表示解析时刻的墙钟时间
const EndNow = "now"

var (
	// ErrInvalidSpan 时间描述符非法
	ErrInvalidSpan = errors.New("非法的时间窗口")
	// ErrInvalidDuration 持续时间非法或非正
	ErrInvalidDuration = errors.New("非法的持续时间")
)

// Absolute 解析后的绝对时间窗口，满足 Start < End 且 Step > 0；
// 每次请求重新解析，从不缓存
type Absolute struct {
	Start time.Time
	End   time.Time
	Step  time.Duration
}

var durationPattern = regexp.MustCompile(`^\s*(\d+)\s*([A-Za-z]+)\s*$`)

// unitSeconds 支持的时间单位，长短写法均可
var unitSeconds = map[string]int64{
	"s": 1, "sec": 1, "secs": 1, "second": 1, "seconds": 1,
	"m": 60, "min": 60, "mins": 60, "minute": 60, "minutes": 60,
	"h": 3600, "hr": 3600, "hrs": 3600, "hour": 3600, "hours": 3600,
	"d": 86400, "day": 86400, "days": 86400,
	"w": 604800, "week": 604800, "weeks": 604800,
}

// ParseDuration 解析人类可读的持续时间，如 "1d"、"10min"、"2 weeks"
func ParseDuration(raw string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, raw)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: 持续时间必须为正数: %q", ErrInvalidDuration, raw)
	}
	secs, ok := unitSeconds[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("%w: 不支持的时间单位 %q", ErrInvalidDuration, m[2])
	}
	return time.Duration(n*secs) * time.Second, nil
}

// Pick 选取生效的时间窗口，优先级为 请求级覆盖(三项齐全) > 图级 > 仪表盘级；
// 全部缺失返回 nil，由 Resolve 使用缺省区间
func Pick(override *models.Span, fallbacks ...*models.Span) *models.Span {
	if override.Complete() {
		return override
	}
	for _, s := range fallbacks {
		if s != nil {
			return s
		}
	}
	return nil
}

// Resolve 将符号化时间窗口解析为绝对区间；
// now 为本次请求采样一次的墙钟时间，请求内部重复使用同一个值
func Resolve(span *models.Span, now time.Time) (Absolute, error) {
	if span == nil {
		// 未配置任何时间窗口时的缺省区间
		return Absolute{
			Start: now.Add(-10 * time.Minute),
			End:   now,
			Step:  30 * time.Second,
		}, nil
	}
	end := now
	if !strings.EqualFold(span.End, EndNow) {
		t, err := time.Parse(time.RFC3339, span.End)
		if err != nil {
			return Absolute{}, fmt.Errorf("%w: 无法解析结束时间 %q", ErrInvalidSpan, span.End)
		}
		end = t
	}
	duration, err := ParseDuration(span.Duration)
	if err != nil {
		return Absolute{}, err
	}
	step, err := ParseDuration(span.StepDuration)
	if err != nil {
		return Absolute{}, err
	}
	return Absolute{Start: end.Add(-duration), End: end, Step: step}, nil
}
