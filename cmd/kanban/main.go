package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dushixiang/kanban/internal/config"
	"github.com/dushixiang/kanban/internal/logger"
	"github.com/dushixiang/kanban/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "kanban",
		Short:        "基于 YAML 定义的指标与日志仪表盘查询服务",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "配置文件路径")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	log := logger.New(cfg.Log)
	defer log.Sync()

	store, err := config.NewStore(cfg.Dashboards, log)
	if err != nil {
		return fmt.Errorf("加载仪表盘定义失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 仪表盘文件变更时原子替换配置快照
	go func() {
		if err := store.Watch(ctx); err != nil {
			log.Error("仪表盘文件监听退出", zap.Error(err))
		}
	}()

	srv := server.New(cfg, store, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case sig := <-quit:
		log.Info("收到退出信号", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("服务关闭失败", zap.Error(err))
		return err
	}
	log.Info("服务已退出")
	return nil
}
