package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dingtalk-sync-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthController(t *testing.T) {
	testDB := testutil.NewTestDB()
	controller := NewHealthController(testDB.DB)

	call := func(handler http.HandlerFunc) (int, HealthResponse) {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return w.Code, resp
	}

	t.Run("健康检查", func(t *testing.T) {
		code, resp := call(controller.Health)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, serviceName, resp.Service)
	})

	t.Run("数据库可用时就绪", func(t *testing.T) {
		code, resp := call(controller.Ready)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ready", resp.Status)
		assert.Empty(t, resp.Error)
	})

	t.Run("数据库关闭后未就绪", func(t *testing.T) {
		testDB.Close()
		code, resp := call(controller.Ready)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unavailable", resp.Status)
		assert.NotEmpty(t, resp.Error)
	})

	t.Run("未注入数据库时视为就绪", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewHealthController(nil).Ready(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
