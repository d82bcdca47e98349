package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dushixiang/kanban/internal/config"
	"github.com/dushixiang/kanban/internal/models"
	"github.com/dushixiang/kanban/internal/service"
	"github.com/dushixiang/kanban/internal/timespan"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// filterParamPrefix 标签过滤器查询参数前缀，如 filter-instance=a|b
const filterParamPrefix = "filter-"

// QueryHandler 渲染查询处理器
type QueryHandler struct {
	logger  *zap.Logger
	store   *config.Store
	service *service.QueryService
}

// NewQueryHandler 创建处理器
func NewQueryHandler(logger *zap.Logger, store *config.Store, service *service.QueryService) *QueryHandler {
	return &QueryHandler{
		logger:  logger,
		store:   store,
		service: service,
	}
}

// dashboardInfo 仪表盘目录项，供前端构建导航菜单
type dashboardInfo struct {
	Title  string   `json:"title"`
	Graphs []string `json:"graphs"`
	Logs   []string `json:"logs"`
}

// ListDashboards 列出全部仪表盘及其图与日志面板标题
// GET /api/dash
func (h *QueryHandler) ListDashboards(c echo.Context) error {
	dashboards := h.store.Dashboards()
	items := make([]dashboardInfo, 0, len(dashboards))
	for _, dash := range dashboards {
		info := dashboardInfo{
			Title:  dash.Title,
			Graphs: make([]string, 0, len(dash.Graphs)),
			Logs:   make([]string, 0, len(dash.Logs)),
		}
		for _, graph := range dash.Graphs {
			info.Graphs = append(info.Graphs, graph.Title)
		}
		for _, panel := range dash.Logs {
			info.Logs = append(info.Logs, panel.Title)
		}
		items = append(items, info)
	}
	return c.JSON(http.StatusOK, items)
}

// QueryGraph 查询指标图数据
// GET /api/dash/:dash/graph/:graph
func (h *QueryHandler) QueryGraph(c echo.Context) error {
	dashIdx, graphIdx, ok := parseIndexes(c, "dash", "graph")
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "仪表盘或图不存在",
		})
	}
	dash, graph, err := h.store.Graph(dashIdx, graphIdx)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "仪表盘或图不存在",
		})
	}

	payload, err := h.service.QueryGraph(c.Request().Context(), dash, graph, parseRequestOptions(c))
	if err != nil {
		return h.queryError(c, err, dash.Title, graph.Title)
	}
	return c.JSON(http.StatusOK, payload)
}

// QueryLog 查询日志面板数据
// GET /api/dash/:dash/log/:log
func (h *QueryHandler) QueryLog(c echo.Context) error {
	dashIdx, logIdx, ok := parseIndexes(c, "dash", "log")
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "仪表盘或日志面板不存在",
		})
	}
	dash, panel, err := h.store.LogPanel(dashIdx, logIdx)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "仪表盘或日志面板不存在",
		})
	}

	payload, err := h.service.QueryLog(c.Request().Context(), dash, panel, parseRequestOptions(c))
	if err != nil {
		return h.queryError(c, err, dash.Title, panel.Title)
	}
	return c.JSON(http.StatusOK, payload)
}

// queryError 区分请求级错误：时间窗口非法属于客户端错误
func (h *QueryHandler) queryError(c echo.Context, err error, dashboard, element string) error {
	if errors.Is(err, timespan.ErrInvalidSpan) || errors.Is(err, timespan.ErrInvalidDuration) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}
	h.logger.Error("渲染查询失败",
		zap.String("dashboard", dashboard),
		zap.String("element", element),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": "查询失败",
	})
}

func parseIndexes(c echo.Context, first, second string) (int, int, bool) {
	a, err := strconv.Atoi(c.Param(first))
	if err != nil {
		return 0, 0, false
	}
	b, err := strconv.Atoi(c.Param(second))
	if err != nil {
		return 0, 0, false
	}
	return a, b, true
}

// parseRequestOptions 解析时间窗口覆盖与标签过滤器
func parseRequestOptions(c echo.Context) service.RequestOptions {
	opts := service.RequestOptions{}

	end := c.QueryParam("end")
	duration := c.QueryParam("duration")
	step := c.QueryParam("step_duration")
	// 三个参数必须同时给出才构成覆盖，部分给出时整体忽略
	if end != "" && duration != "" && step != "" {
		opts.Span = &models.Span{
			End:          end,
			Duration:     duration,
			StepDuration: step,
		}
	}

	for name, values := range c.QueryParams() {
		if !strings.HasPrefix(name, filterParamPrefix) {
			continue
		}
		label := strings.TrimPrefix(name, filterParamPrefix)
		if label == "" {
			continue
		}
		for _, value := range values {
			if value == "" {
				continue
			}
			if opts.Filters == nil {
				opts.Filters = make(map[string][]string)
			}
			opts.Filters[label] = append(opts.Filters[label], strings.Split(value, "|")...)
		}
	}
	return opts
}
