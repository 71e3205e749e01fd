package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	https_server "RAGLink/api/http"
	"RAGLink/internal/config"
	"RAGLink/pkg/redis"
	"RAGLink/pkg/zlog"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()
	zlog.Init(conf.LogConfig.LogPath)
	host := conf.MainConfig.Host
	port := conf.MainConfig.Port

	// 2. 启动消费端
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	go func() {
		if err := https_server.ExtractWorker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			zlog.Fatal("文件解析消费端退出: " + err.Error())
		}
	}()
	go func() {
		if err := https_server.ConversationWorker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			zlog.Fatal("会话消费端退出: " + err.Error())
		}
	}()

	// 3. 启动 HTTP 服务
	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		zlog.Info(fmt.Sprintf("服务器正在启动，监听地址: %s", addr))
		// 目前使用 HTTP 启动。如果需要 HTTPS，请配置证书并使用 GE.RunTLS
		if err := https_server.GE.Run(addr); err != nil {
			zlog.Fatal("服务器启动失败: " + err.Error())
			return
		}
	}()

	// 4. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 等待退出信号
	<-quit

	zlog.Info("正在关闭服务器...")
	stopWorkers()
	if https_server.Publisher != nil {
		_ = https_server.Publisher.Close()
	}
	_ = redis.Close()
	zlog.Sync()

	zlog.Info("服务器已关闭")
}
