package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/dushixiang/kanban/internal/models"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrNotFound 请求引用了不存在的仪表盘、图或日志面板
var ErrNotFound = errors.New("配置项不存在")

// Store 仪表盘配置的进程级快照。
// 快照加载后只读，所有请求无锁共享；文件变更时整体原子替换，
// 从不原地修改正在服务的快照。
type Store struct {
	logger   *zap.Logger
	path     string
	snapshot atomic.Pointer[[]models.Dashboard]
}

// NewStore 加载仪表盘定义文件
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{logger: logger, path: path}
	dashboards, err := loadDashboards(path)
	if err != nil {
		return nil, err
	}
	s.snapshot.Store(&dashboards)
	return s, nil
}

// Dashboards 返回当前快照；调用方只读，不得修改
func (s *Store) Dashboards() []models.Dashboard {
	return *s.snapshot.Load()
}

// Graph 按位置定位指标图；任一索引越界返回 ErrNotFound
func (s *Store) Graph(dashIdx, graphIdx int) (*models.Dashboard, *models.Graph, error) {
	dashboards := s.Dashboards()
	if dashIdx < 0 || dashIdx >= len(dashboards) {
		return nil, nil, fmt.Errorf("%w: 仪表盘 %d", ErrNotFound, dashIdx)
	}
	dash := &dashboards[dashIdx]
	if graphIdx < 0 || graphIdx >= len(dash.Graphs) {
		return nil, nil, fmt.Errorf("%w: 仪表盘 %d 中的图 %d", ErrNotFound, dashIdx, graphIdx)
	}
	return dash, &dash.Graphs[graphIdx], nil
}

// LogPanel 按位置定位日志面板；任一索引越界返回 ErrNotFound
func (s *Store) LogPanel(dashIdx, logIdx int) (*models.Dashboard, *models.LogPanel, error) {
	dashboards := s.Dashboards()
	if dashIdx < 0 || dashIdx >= len(dashboards) {
		return nil, nil, fmt.Errorf("%w: 仪表盘 %d", ErrNotFound, dashIdx)
	}
	dash := &dashboards[dashIdx]
	if logIdx < 0 || logIdx >= len(dash.Logs) {
		return nil, nil, fmt.Errorf("%w: 仪表盘 %d 中的日志面板 %d", ErrNotFound, dashIdx, logIdx)
	}
	return dash, &dash.Logs[logIdx], nil
}

// Watch 监听仪表盘文件变更并原子替换快照，直到 ctx 结束。
// 监听目录而非文件本身，编辑器的改名写入也能触发
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("监听仪表盘文件失败", zap.Error(err))
		}
	}
}

// reload 重新加载仪表盘定义；解析失败时保留旧快照继续服务
func (s *Store) reload() {
	dashboards, err := loadDashboards(s.path)
	if err != nil {
		s.logger.Error("重新加载仪表盘配置失败",
			zap.String("path", s.path),
			zap.Error(err))
		return
	}
	s.snapshot.Store(&dashboards)
	s.logger.Info("仪表盘配置已重新加载", zap.Int("count", len(dashboards)))
}

// loadDashboards 解析仪表盘 YAML 并做规范化校验
func loadDashboards(path string) ([]models.Dashboard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var dashboards []models.Dashboard
	if err := yaml.Unmarshal(data, &dashboards); err != nil {
		return nil, fmt.Errorf("解析仪表盘定义失败: %w", err)
	}
	for i := range dashboards {
		if err := normalizeDashboard(&dashboards[i]); err != nil {
			return nil, fmt.Errorf("仪表盘 %q: %w", dashboards[i].Title, err)
		}
	}
	return dashboards, nil
}

func normalizeDashboard(d *models.Dashboard) error {
	for i := range d.Graphs {
		q, err := normalizeQueryType(d.Graphs[i].QueryType)
		if err != nil {
			return fmt.Errorf("图 %q: %w", d.Graphs[i].Title, err)
		}
		d.Graphs[i].QueryType = q
	}
	for i := range d.Logs {
		q, err := normalizeQueryType(d.Logs[i].QueryType)
		if err != nil {
			return fmt.Errorf("日志面板 %q: %w", d.Logs[i].Title, err)
		}
		d.Logs[i].QueryType = q
	}
	return nil
}

// normalizeQueryType 查询类型大小写不敏感，缺省为区间查询
func normalizeQueryType(t models.QueryType) (models.QueryType, error) {
	switch q := models.QueryType(strings.ToLower(string(t))); q {
	case "":
		return models.QueryTypeRange, nil
	case models.QueryTypeRange, models.QueryTypeScalar:
		return q, nil
	default:
		return "", fmt.Errorf("不支持的查询类型 %q", t)
	}
}
