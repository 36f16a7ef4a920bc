package dingtalk_client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"dingtalk-sync-service/service/models"
	"dingtalk-sync-service/service/rate_limiter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDingTalk 模拟钉钉开放平台，按路径注册处理函数
type fakeDingTalk struct {
	t        *testing.T
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]func(r *http.Request, body map[string]interface{}) (int, interface{})
	calls    map[string]int
	requests map[string][]*http.Request
	bodies   map[string][]map[string]interface{}
}

func newFakeDingTalk(t *testing.T) *fakeDingTalk {
	f := &fakeDingTalk{
		t:        t,
		handlers: make(map[string]func(r *http.Request, body map[string]interface{}) (int, interface{})),
		calls:    make(map[string]int),
		requests: make(map[string][]*http.Request),
		bodies:   make(map[string][]map[string]interface{}),
	}
	f.handle("/gettoken", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"errcode": 0, "access_token": "token-1", "expires_in": 7200}
	})
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeDingTalk) handle(path string, fn func(r *http.Request, body map[string]interface{}) (int, interface{})) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = fn
}

func (f *fakeDingTalk) serve(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	f.mu.Lock()
	f.calls[r.URL.Path]++
	f.requests[r.URL.Path] = append(f.requests[r.URL.Path], r)
	f.bodies[r.URL.Path] = append(f.bodies[r.URL.Path], body)
	handler, ok := f.handlers[r.URL.Path]
	f.mu.Unlock()

	if !ok {
		f.t.Errorf("未注册的路径: %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	status, resp := handler(r, body)
	w.WriteHeader(status)
	if text, ok := resp.(string); ok {
		_, _ = w.Write([]byte(text))
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeDingTalk) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeDingTalk) bodyAt(path string, index int) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[path][index]
}

func (f *fakeDingTalk) requestAt(path string, index int) *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path][index]
}

type memoryTokenStore struct {
	token     string
	expiresAt time.Time
	saves     int
}

func (s *memoryTokenStore) SaveAccessToken(ctx context.Context, configID, token string, expiresAt time.Time) error {
	s.token = token
	s.expiresAt = expiresAt
	s.saves++
	return nil
}

var testNow = time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	fake   *fakeDingTalk
	client *Client
	config *models.DingTalkConfig
	store  *memoryTokenStore
	sleeps []time.Duration
}

func newTestEnv(t *testing.T) *testEnv {
	env := &testEnv{
		fake: newFakeDingTalk(t),
		config: &models.DingTalkConfig{
			ID:        "default",
			AppKey:    "app-key",
			AppSecret: "app-secret",
			AgentID:   "agent-1",
		},
		store: &memoryTokenStore{},
	}

	client, err := NewClient(env.config, Options{
		BaseURL:        env.fake.server.URL,
		OpenAPIBaseURL: env.fake.server.URL,
		Limiter:        rate_limiter.NewSlidingWindowLimiter(nil),
		TokenStore:     env.store,
		Location:       time.UTC,
		Now:            func() time.Time { return testNow },
		Sleep: func(ctx context.Context, d time.Duration) error {
			env.sleeps = append(env.sleeps, d)
			return nil
		},
	})
	require.NoError(t, err)
	env.client = client
	return env
}

func TestNewClient_MissingCredentials(t *testing.T) {
	tests := []struct {
		name   string
		config *models.DingTalkConfig
	}{
		{"配置为空", nil},
		{"缺少AppKey", &models.DingTalkConfig{AppSecret: "s"}},
		{"缺少AppSecret", &models.DingTalkConfig{AppKey: "k"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.config, Options{})
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
			assert.Equal(t, MsgMissingCredentials, err.Error())
		})
	}
}

func TestGetAccessToken(t *testing.T) {
	t.Run("缓存令牌有效时不请求", func(t *testing.T) {
		env := newTestEnv(t)
		expiresAt := testNow.Add(10 * time.Minute)
		env.config.AccessToken = "cached"
		env.config.AccessTokenExpiresAt = &expiresAt

		token, err := env.client.GetAccessToken(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, "cached", token)
		assert.Equal(t, 0, env.fake.callCount("/gettoken"))
	})

	t.Run("剩余不足2分钟时刷新", func(t *testing.T) {
		env := newTestEnv(t)
		expiresAt := testNow.Add(90 * time.Second)
		env.config.AccessToken = "cached"
		env.config.AccessTokenExpiresAt = &expiresAt

		token, err := env.client.GetAccessToken(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, "token-1", token)
		assert.Equal(t, 1, env.fake.callCount("/gettoken"))
		assert.Equal(t, testNow.Add(7140*time.Second), *env.config.AccessTokenExpiresAt)
		assert.Equal(t, "token-1", env.store.token)
		assert.Equal(t, 1, env.store.saves)

		req := env.fake.requestAt("/gettoken", 0)
		assert.Equal(t, "app-key", req.URL.Query().Get("appkey"))
		assert.Equal(t, "app-secret", req.URL.Query().Get("appsecret"))
	})

	t.Run("强制刷新", func(t *testing.T) {
		env := newTestEnv(t)
		expiresAt := testNow.Add(time.Hour)
		env.config.AccessToken = "cached"
		env.config.AccessTokenExpiresAt = &expiresAt

		token, err := env.client.GetAccessToken(context.Background(), true)
		require.NoError(t, err)
		assert.Equal(t, "token-1", token)
	})

	t.Run("有效期过短时至少60秒", func(t *testing.T) {
		env := newTestEnv(t)
		env.fake.handle("/gettoken", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
			return http.StatusOK, map[string]interface{}{"errcode": 0, "access_token": "short", "expires_in": 30}
		})

		_, err := env.client.GetAccessToken(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, testNow.Add(60*time.Second), *env.config.AccessTokenExpiresAt)
	})
}

func TestLegacyRequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		response interface{}
		wantCode string
	}{
		{"业务错误码", http.StatusOK, map[string]interface{}{"errcode": 40014, "errmsg": "不合法的access_token"}, "40014"},
		{"服务端异常", http.StatusBadGateway, map[string]interface{}{}, ""},
		{"非JSON响应", http.StatusOK, "<html>oops</html>", ""},
		{"非对象响应", http.StatusOK, []interface{}{1, 2}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.fake.handle("/gettoken", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
				return tt.status, tt.response
			})

			_, err := env.client.GetAccessToken(context.Background(), false)
			require.Error(t, err)
			apiErr, ok := AsAPIError(err)
			require.True(t, ok, "应返回 APIError")
			assert.Equal(t, tt.wantCode, apiErr.Code())
		})
	}
}

func TestLegacyRequest_ErrcodeCarriesPayload(t *testing.T) {
	env := newTestEnv(t)
	env.fake.handle("/gettoken", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"errcode": 40089, "errmsg": "invalid appkey"}
	})

	_, err := env.client.GetAccessToken(context.Background(), false)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "invalid appkey(errcode=40089)", apiErr.Error())
	assert.Equal(t, 40089, apiErr.ErrCode())
	assert.Contains(t, apiErr.Detail(), "invalid appkey")
}

func TestListDepartments_TerminatesOnCycle(t *testing.T) {
	env := newTestEnv(t)
	children := map[float64][]interface{}{
		1: {map[string]interface{}{"dept_id": 2, "name": "研发部", "parent_id": 1}, map[string]interface{}{"dept_id": 3, "name": "市场部", "parent_id": 1}},
		2: {map[string]interface{}{"dept_id": 1, "name": "根"}, map[string]interface{}{"dept_id": 4, "name": "后端组", "parent_id": 2}},
		3: {},
		4: {map[string]interface{}{"dept_id": 2, "name": "研发部"}},
	}
	env.fake.handle("/topapi/v2/department/get", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		assert.Equal(t, "token-1", r.URL.Query().Get("access_token"))
		assert.Equal(t, "zh_CN", body["language"])
		return http.StatusOK, map[string]interface{}{"errcode": 0, "result": map[string]interface{}{"dept_id": 1, "name": "总公司"}}
	})
	env.fake.handle("/topapi/v2/department/listsub", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		deptID := body["dept_id"].(float64)
		return http.StatusOK, map[string]interface{}{"errcode": 0, "result": map[string]interface{}{"dept_list": children[deptID]}}
	})

	depts, err := env.client.ListDepartments(context.Background(), 1)
	require.NoError(t, err)

	var names []string
	for _, dept := range depts {
		names = append(names, dept["name"].(string))
	}
	assert.Equal(t, []string{"总公司", "研发部", "后端组", "市场部"}, names)
	assert.Equal(t, 4, env.fake.callCount("/topapi/v2/department/listsub"))
}

func TestListAllUsers_MergesByUserID(t *testing.T) {
	env := newTestEnv(t)
	pages := map[float64][]interface{}{
		2: {
			map[string]interface{}{"userid": "u1", "name": "张三", "mobile": "13800000000", "dept_id_list": []interface{}{2}},
			map[string]interface{}{"userid": "", "name": "无ID"},
		},
		3: {
			map[string]interface{}{"userid": "u1", "name": "", "title": "工程师", "dept_id_list": []interface{}{3, 2}},
			map[string]interface{}{"userid": "u2", "name": "李四", "dept_id_list": []interface{}{3}},
		},
	}
	env.fake.handle("/topapi/v2/user/list", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		assert.Equal(t, float64(100), body["size"])
		return http.StatusOK, map[string]interface{}{"errcode": 0, "result": map[string]interface{}{"list": pages[body["dept_id"].(float64)]}}
	})

	users, err := env.client.ListAllUsers(context.Background(), []int64{2, 3})
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, "u1", users[0]["userid"])
	assert.Equal(t, "张三", users[0]["name"], "空值不应覆盖已有字段")
	assert.Equal(t, "工程师", users[0]["title"])
	assert.Equal(t, []interface{}{int64(2), int64(3)}, users[0]["dept_id_list"])
	assert.Equal(t, "u2", users[1]["userid"])
}

func TestListUsersByDept_Pagination(t *testing.T) {
	env := newTestEnv(t)
	env.fake.handle("/topapi/v2/user/list", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		if body["cursor"].(float64) == 0 {
			return http.StatusOK, map[string]interface{}{"errcode": 0, "result": map[string]interface{}{
				"list":        []interface{}{map[string]interface{}{"userid": "u1"}},
				"next_cursor": 100,
			}}
		}
		return http.StatusOK, map[string]interface{}{"errcode": 0, "result": map[string]interface{}{
			"list": []interface{}{map[string]interface{}{"userid": "u2"}},
		}}
	})

	users, err := env.client.ListUsersByDept(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 2, env.fake.callCount("/topapi/v2/user/list"))
}

func TestListAttendanceRecords_RetriesRateLimit(t *testing.T) {
	env := newTestEnv(t)
	attempts := 0
	env.fake.handle("/attendance/listRecord", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		attempts++
		if attempts <= 2 {
			return http.StatusOK, map[string]interface{}{"errcode": 90018, "errmsg": "请求过于频繁"}
		}
		assert.Equal(t, "2025-10-01 00:00:00", body["checkDateFrom"])
		assert.Equal(t, "2025-10-01 23:59:59", body["checkDateTo"])
		assert.Equal(t, false, body["isI18n"])
		return http.StatusOK, map[string]interface{}{"errcode": 0, "result": map[string]interface{}{
			"recordresult": []interface{}{map[string]interface{}{"id": 1, "userId": "u1"}},
		}}
	})

	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 10, 1, 23, 59, 59, 0, time.UTC)
	records, err := env.client.ListAttendanceRecords(context.Background(), []string{"u1"}, start, end)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, []time.Duration{800 * time.Millisecond, 1200 * time.Millisecond}, env.sleeps)
}

func TestListAttendanceRecords_GivesUpAfterThreeRetries(t *testing.T) {
	env := newTestEnv(t)
	env.fake.handle("/attendance/listRecord", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"errcode": 90018, "errmsg": "请求过于频繁"}
	})

	_, err := env.client.ListAttendanceRecords(context.Background(), []string{"u1"}, testNow, testNow)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 90018, apiErr.ErrCode())
	assert.Equal(t, 4, env.fake.callCount("/attendance/listRecord"))
	assert.Len(t, env.sleeps, 3)
}

func TestListAttendanceRecords_PaginatesAndBatches(t *testing.T) {
	env := newTestEnv(t)
	env.fake.handle("/attendance/listRecord", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		users := body["userIdList"].([]interface{})
		offset := body["offset"].(float64)
		size := 1
		if len(users) == 50 && offset == 0 {
			size = 50
		}
		records := make([]interface{}, 0, size)
		for i := 0; i < size; i++ {
			records = append(records, map[string]interface{}{"id": offset*1000 + float64(i)})
		}
		return http.StatusOK, map[string]interface{}{"errcode": 0, "result": map[string]interface{}{"recordresult": records, "has_more": true}}
	})

	userIDs := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		userIDs = append(userIDs, "u"+string(rune('A'+i%26))+string(rune('a'+i/26)))
	}

	records, err := env.client.ListAttendanceRecords(context.Background(), userIDs, testNow, testNow)
	require.NoError(t, err)
	// 第一批：50 + 1（短页结束）；第二批（10人）：1
	assert.Len(t, records, 52)
	assert.Equal(t, 3, env.fake.callCount("/attendance/listRecord"))
	assert.Equal(t, float64(50), env.fake.bodyAt("/attendance/listRecord", 1)["offset"])
}

func TestListAttendanceRecords_EmptyUsers(t *testing.T) {
	env := newTestEnv(t)
	records, err := env.client.ListAttendanceRecords(context.Background(), nil, testNow, testNow)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, env.fake.callCount("/gettoken"))
}
