package server

import (
	"net/http"
	"time"

	"BackpropDev/pkg/backprop"
	"BackpropDev/pkg/config"
	"BackpropDev/pkg/dataProcess"
	"BackpropDev/pkg/network"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// TrainRequest 训练请求，未给出的参数使用会话配置中的值
type TrainRequest struct {
	// Dataset 为 "xor" 时使用内置的异或数据集，否则使用 Samples
	Dataset          string           `json:"dataset,omitempty"`
	Samples          backprop.Samples `json:"samples,omitempty"`
	LearningRate     *float64         `json:"learning_rate,omitempty"`
	Momentum         *float64         `json:"momentum,omitempty"`
	MaxEpochs        *int             `json:"max_epochs,omitempty"`
	Threshold        *float64         `json:"threshold,omitempty"`
	HaltOnDegeneracy *bool            `json:"halt_on_degeneracy,omitempty"`
}

// TrainResponse 训练结果
type TrainResponse struct {
	Converged  bool      `json:"converged"`
	Epochs     int       `json:"epochs"`
	Error      float64   `json:"error"`
	Degenerate int       `json:"degenerate"`
	History    []float64 `json:"history"`
	Elapsed    string    `json:"elapsed"`
}

// PredictRequest 预测请求
type PredictRequest struct {
	Input []float64 `json:"input" binding:"required"`
}

// ModelPayload Base64 编码的 gob 模型
type ModelPayload struct {
	Model string `json:"model" binding:"required"`
}

// statusFor 把错误分类映射为HTTP状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, network.ErrEmptyDataset),
		errors.Is(err, network.ErrConfiguration),
		errors.Is(err, network.ErrShapeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, network.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, network.ErrNumericDegeneracy):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func abort(ctx *gin.Context, err error) {
	ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// session 取出路径中的会话，不存在时写入404
func (hs *HTTPServer) session(ctx *gin.Context) (*Session, bool) {
	s, err := hs.Sessions.Get(ctx.Param("id"))
	if err != nil {
		abort(ctx, err)
		return nil, false
	}
	return s, true
}

// healthHandler 健康检查
func (hs *HTTPServer) healthHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": len(hs.Sessions.List())})
}

// createSessionHandler 创建会话，请求体为训练配置（JSON或YAML），空请求体使用默认配置
func (hs *HTTPServer) createSessionHandler(ctx *gin.Context) {
	body, err := ctx.GetRawData()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	cfg := config.Default()
	if len(body) > 0 {
		if cfg, err = config.Parse(body); err != nil {
			abort(ctx, err)
			return
		}
	}
	s, err := hs.Sessions.Create(cfg)
	if err != nil {
		abort(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, s.Info())
}

// listSessionsHandler 列出所有会话
func (hs *HTTPServer) listSessionsHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"sessions": hs.Sessions.List()})
}

// getSessionHandler 查询会话状态
func (hs *HTTPServer) getSessionHandler(ctx *gin.Context) {
	s, ok := hs.session(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, s.Info())
}

// deleteSessionHandler 删除会话
func (hs *HTTPServer) deleteSessionHandler(ctx *gin.Context) {
	if err := hs.Sessions.Delete(ctx.Param("id")); err != nil {
		abort(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// trainHandler 同步运行监督训练
func (hs *HTTPServer) trainHandler(ctx *gin.Context) {
	s, ok := hs.session(ctx)
	if !ok {
		return
	}
	var req TrainRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	var ds backprop.Dataset = req.Samples
	if req.Dataset == "xor" {
		ds = dataProcess.XOR()
	} else if req.Dataset != "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "unknown dataset " + req.Dataset})
		return
	}

	sup := s.Supervised()
	if req.LearningRate != nil {
		sup.LearningRate = *req.LearningRate
	}
	if req.Momentum != nil {
		sup.Momentum = *req.Momentum
	}
	if req.MaxEpochs != nil {
		sup.MaxEpochs = *req.MaxEpochs
	}
	if req.Threshold != nil {
		sup.Threshold = *req.Threshold
	}
	if req.HaltOnDegeneracy != nil {
		sup.HaltOnDegeneracy = *req.HaltOnDegeneracy
	}

	res, err := s.Train(ctx.Request.Context(), ds, sup)
	if err != nil {
		abort(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, TrainResponse{
		Converged:  res.Converged,
		Epochs:     res.Epochs,
		Error:      res.Error,
		Degenerate: res.Degenerate,
		History:    res.History,
		Elapsed:    res.Elapsed.Round(time.Microsecond).String(),
	})
}

// resetHandler 丢弃批量模式下尚未应用的累加增量
func (hs *HTTPServer) resetHandler(ctx *gin.Context) {
	s, ok := hs.session(ctx)
	if !ok {
		return
	}
	if err := s.Reset(); err != nil {
		abort(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// predictHandler 前向传播
func (hs *HTTPServer) predictHandler(ctx *gin.Context) {
	s, ok := hs.session(ctx)
	if !ok {
		return
	}
	var req PredictRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request, input required"})
		return
	}
	output, class, err := s.Predict(req.Input)
	if err != nil {
		abort(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"output": output, "class": class})
}

// getModelHandler 导出模型
func (hs *HTTPServer) getModelHandler(ctx *gin.Context) {
	s, ok := hs.session(ctx)
	if !ok {
		return
	}
	model, err := s.Model()
	if err != nil {
		abort(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, ModelPayload{Model: model})
}

// putModelHandler 导入模型
func (hs *HTTPServer) putModelHandler(ctx *gin.Context) {
	s, ok := hs.session(ctx)
	if !ok {
		return
	}
	var req ModelPayload
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request, model required"})
		return
	}
	if err := s.Import(req.Model); err != nil {
		abort(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, s.Info())
}

// progressHandler 通过websocket推送训练进度
// 连接建立后先发送一条 subscribed 消息，此后的每轮训练都会推送
func (hs *HTTPServer) progressHandler(ctx *gin.Context) {
	s, ok := hs.session(ctx)
	if !ok {
		return
	}
	conn, err := hs.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, cancel := s.Subscribe()
	defer cancel()
	if err := conn.WriteJSON(Event{Type: EventSubscribed, Message: s.ID}); err != nil {
		return
	}

	// 读循环只用于发现客户端断开
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
