// Package server 基于 gin 的训练服务
//
// 每个会话持有一个网络和绑定到它的训练器，客户端通过 HTTP 创建会话、提交训练数据、
// 预测和导出模型，通过 websocket 订阅每轮训练的平均误差。
package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// HTTPServer HTTP服务器
type HTTPServer struct {
	//Gin框架的路由引擎
	Router *gin.Engine
	//HTTP服务器监听的端口号
	Port string
	// 会话管理
	Sessions *Manager

	upgrader websocket.Upgrader
}

// NewHTTPServer 创建新的HTTP服务器并注册路由
func NewHTTPServer(port string, sessions *Manager) *HTTPServer {
	if sessions == nil {
		sessions = NewManager()
	}
	hs := &HTTPServer{
		Router:   gin.Default(),
		Port:     port,
		Sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	hs.setupRoutes()
	return hs
}

// setupRoutes 设置HTTP路由
func (hs *HTTPServer) setupRoutes() {
	r := hs.Router
	r.GET("/health", hs.healthHandler)

	sessions := r.Group("/sessions")
	sessions.POST("", hs.createSessionHandler)
	sessions.GET("", hs.listSessionsHandler)
	sessions.GET("/:id", hs.getSessionHandler)
	sessions.DELETE("/:id", hs.deleteSessionHandler)
	sessions.POST("/:id/train", hs.trainHandler)
	sessions.POST("/:id/reset", hs.resetHandler)
	sessions.POST("/:id/predict", hs.predictHandler)
	sessions.GET("/:id/model", hs.getModelHandler)
	sessions.PUT("/:id/model", hs.putModelHandler)
	sessions.GET("/:id/progress", hs.progressHandler)
}

// Start 启动HTTP服务器
func (hs *HTTPServer) Start() error {
	fmt.Printf("训练服务启动中...\n")
	fmt.Printf("监听地址: 0.0.0.0:%s\n", hs.Port)
	fmt.Printf("健康检查: http://localhost:%s/health\n\n", hs.Port)
	return hs.Router.Run(":" + hs.Port)
}
