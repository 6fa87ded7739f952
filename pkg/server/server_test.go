package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const xorSession = `{
  "layers": [2, 2, 1],
  "bias": 1.0,
  "weights": {"method": "sequence", "values": [0.5, -0.3, 0.8, -0.6, 0.9, -0.4, 0.2, 0.7, -0.5]},
  "mode": "online",
  "learning_rate": 1.0,
  "momentum": 0.0,
  "max_epochs": 2000,
  "threshold": 0.05
}`

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewHTTPServer("0", NewManager())
}

func do(t *testing.T, hs *HTTPServer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	hs.Router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createSession(t *testing.T, hs *HTTPServer, body string) Info {
	t.Helper()
	w := do(t, hs, http.MethodPost, "/sessions", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[Info](t, w)
}

func TestHealth(t *testing.T) {
	hs := newTestServer(t)
	w := do(t, hs, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestSessionLifecycle(t *testing.T) {
	hs := newTestServer(t)
	info := createSession(t, hs, "")
	assert.Equal(t, StatusCreated, info.Status)
	assert.Equal(t, "online", info.Mode)
	assert.Equal(t, []int{2, 2, 1}, info.Layers)

	w := do(t, hs, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct{ Sessions []Info }](t, w)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, info.ID, list.Sessions[0].ID)

	w = do(t, hs, http.MethodGet, "/sessions/"+info.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, hs, http.MethodDelete, "/sessions/"+info.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, hs, http.MethodGet, "/sessions/"+info.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, hs, http.MethodDelete, "/sessions/"+info.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSessionRejectsBadConfig(t *testing.T) {
	hs := newTestServer(t)
	w := do(t, hs, http.MethodPost, "/sessions", `{"layers": [3]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, hs, http.MethodPost, "/sessions", `{"mode": "minibatch"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrainPredictAndExport(t *testing.T) {
	hs := newTestServer(t)
	info := createSession(t, hs, xorSession)

	w := do(t, hs, http.MethodPost, "/sessions/"+info.ID+"/train", `{"dataset": "xor"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[TrainResponse](t, w)
	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Error, 0.05)
	assert.Len(t, res.History, res.Epochs)

	w = do(t, hs, http.MethodGet, "/sessions/"+info.ID, "")
	got := decode[Info](t, w)
	assert.Equal(t, StatusTrained, got.Status)
	assert.True(t, got.Converged)

	w = do(t, hs, http.MethodPost, "/sessions/"+info.ID+"/predict", `{"input": [1, 0]}`)
	require.Equal(t, http.StatusOK, w.Code)
	pred := decode[struct {
		Output []float64 `json:"output"`
		Class  int       `json:"class"`
	}](t, w)
	require.Len(t, pred.Output, 1)
	assert.Greater(t, pred.Output[0], 0.5)

	w = do(t, hs, http.MethodPost, "/sessions/"+info.ID+"/predict", `{"input": [1, 0, 1]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, hs, http.MethodGet, "/sessions/"+info.ID+"/model", "")
	require.Equal(t, http.StatusOK, w.Code)
	model := decode[ModelPayload](t, w)
	assert.NotEmpty(t, model.Model)

	// 导入到新会话后预测结果一致
	other := createSession(t, hs, "")
	body, err := json.Marshal(model)
	require.NoError(t, err)
	w = do(t, hs, http.MethodPut, "/sessions/"+other.ID+"/model", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, hs, http.MethodPost, "/sessions/"+other.ID+"/predict", `{"input": [1, 0]}`)
	imported := decode[struct {
		Output []float64 `json:"output"`
	}](t, w)
	assert.Equal(t, pred.Output, imported.Output)

	w = do(t, hs, http.MethodPut, "/sessions/"+other.ID+"/model", `{"model": "not base64!"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrainErrorMapping(t *testing.T) {
	hs := newTestServer(t)
	info := createSession(t, hs, "")

	w := do(t, hs, http.MethodPost, "/sessions/"+info.ID+"/train", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "empty dataset")

	w = do(t, hs, http.MethodPost, "/sessions/"+info.ID+"/train", `{"samples": [{"input": [1], "expected": [0]}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "shape mismatch")

	w = do(t, hs, http.MethodPost, "/sessions/"+info.ID+"/train", `{"dataset": "mnist"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, hs, http.MethodPost, "/sessions/"+info.ID+"/train", `{"dataset": "xor", "max_epochs": 0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "invalid epochs")

	w = do(t, hs, http.MethodPost, "/sessions/"+info.ID+"/reset", "")
	assert.Equal(t, http.StatusConflict, w.Code, "online mode has no accumulator")

	w = do(t, hs, http.MethodPost, "/sessions/missing/train", `{"dataset": "xor"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTrainAllExamplesDegenerate(t *testing.T) {
	hs := newTestServer(t)
	// tanh 在巨大的权重下饱和为1
	info := createSession(t, hs, `{"layers": [1, 1], "bias": null, "weights": {"method": "constant", "value": 1000}, "output_activation": "tanh"}`)
	w := do(t, hs, http.MethodPost, "/sessions/"+info.ID+"/train", `{"samples": [{"input": [1], "expected": [0]}], "max_epochs": 3}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	got := decode[Info](t, do(t, hs, http.MethodGet, "/sessions/"+info.ID, ""))
	assert.Equal(t, StatusFailed, got.Status)
}

func TestBatchReset(t *testing.T) {
	hs := newTestServer(t)
	info := createSession(t, hs, `{"mode": "batch", "learning_rate": 0.5, "momentum": 0.9}`)
	w := do(t, hs, http.MethodPost, "/sessions/"+info.ID+"/reset", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProgressStream(t *testing.T) {
	hs := newTestServer(t)
	info := createSession(t, hs, xorSession)

	srv := httptest.NewServer(hs.Router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + info.ID + "/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	var hello Event
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, EventSubscribed, hello.Type)
	assert.Equal(t, info.ID, hello.Message)

	resp, err := http.Post(srv.URL+"/sessions/"+info.ID+"/train", "application/json",
		bytes.NewBufferString(`{"dataset": "xor", "max_epochs": 5, "threshold": 0}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var epochs []int
	for {
		var e Event
		require.NoError(t, conn.ReadJSON(&e))
		if e.Type == EventDone {
			assert.Equal(t, 5, e.Epoch)
			break
		}
		require.Equal(t, EventEpoch, e.Type)
		epochs = append(epochs, e.Epoch)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, epochs)

	// 删除会话后服务端关闭连接
	require.Equal(t, http.StatusOK, do(t, hs, http.MethodDelete, "/sessions/"+info.ID, "").Code)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "%v", err)
}

func TestProgressUnknownSession(t *testing.T) {
	hs := newTestServer(t)
	w := do(t, hs, http.MethodGet, "/sessions/missing/progress", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
