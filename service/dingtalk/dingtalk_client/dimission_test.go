package dingtalk_client

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"dingtalk-sync-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListDimissionUserIDs_OpenAPI(t *testing.T) {
	env := newTestEnv(t)
	env.fake.handle("/v1.0/hrm/employees/dismissions", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		assert.Equal(t, "token-1", r.Header.Get("x-acs-dingtalk-access-token"))
		assert.Equal(t, "100", r.URL.Query().Get("maxResults"), "页大小应限制在100以内")
		if r.URL.Query().Get("nextToken") == "" {
			return http.StatusOK, map[string]interface{}{"userIdList": []interface{}{"u1", "u2"}, "hasMore": true, "nextToken": "p2"}
		}
		return http.StatusOK, map[string]interface{}{"userIdList": []interface{}{"u2", "u3", ""}, "hasMore": false}
	})

	ids, err := env.client.ListDimissionUserIDs(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, ids)
	assert.Equal(t, 2, env.fake.callCount("/v1.0/hrm/employees/dismissions"))
}

func TestListDimissionUserIDs_FallbackToLegacy(t *testing.T) {
	env := newTestEnv(t)
	env.fake.handle("/v1.0/hrm/employees/dismissions", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"code": "Forbidden.AccessDenied", "message": "没有权限"}
	})
	env.fake.handle("/topapi/smartwork/hrm/employee/querydimission", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		assert.Equal(t, float64(50), body["size"], "旧版接口页大小限制在50以内")
		if body["offset"].(float64) == 0 {
			return http.StatusOK, map[string]interface{}{"errcode": 0, "result": map[string]interface{}{"userid_list": []interface{}{"a", "b"}, "has_more": true}}
		}
		return http.StatusOK, map[string]interface{}{"errcode": 0, "result": map[string]interface{}{"useridList": []interface{}{"b", "c"}, "hasMore": false}}
	})

	ids, err := env.client.ListDimissionUserIDs(context.Background(), 80)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, float64(50), env.fake.bodyAt("/topapi/smartwork/hrm/employee/querydimission", 1)["offset"])
}

func TestListDimissionUserIDs_LegacyFailureSurfaces(t *testing.T) {
	env := newTestEnv(t)
	env.fake.handle("/v1.0/hrm/employees/dismissions", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		return http.StatusInternalServerError, map[string]interface{}{}
	})
	env.fake.handle("/topapi/smartwork/hrm/employee/querydimission", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"errcode": 60011, "errmsg": "no permission"}
	})

	_, err := env.client.ListDimissionUserIDs(context.Background(), 50)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "60011", apiErr.Code())
}

func TestListDimissionInfos_OpenAPIBatches(t *testing.T) {
	env := newTestEnv(t)
	env.fake.handle("/v1.0/hrm/employees/dimissionInfos", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		var ids []string
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("userIdList")), &ids))
		records := make([]interface{}, 0, len(ids))
		for _, id := range ids {
			records = append(records, map[string]interface{}{"userId": id})
		}
		if len(ids) == 50 {
			return http.StatusOK, map[string]interface{}{"result": records}
		}
		return http.StatusOK, map[string]interface{}{"result": map[string]interface{}{"records": records}}
	})

	ids := make([]string, 0, 55)
	for i := 0; i < 55; i++ {
		ids = append(ids, "user-"+string(rune('A'+i%26))+string(rune('a'+i/26)))
	}

	infos, err := env.client.ListDimissionInfos(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, infos, 55)
	assert.Equal(t, 2, env.fake.callCount("/v1.0/hrm/employees/dimissionInfos"))
}

func TestListDimissionInfos_FallbackToLegacy(t *testing.T) {
	env := newTestEnv(t)
	env.fake.handle("/v1.0/hrm/employees/dimissionInfos", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"code": "InvalidAuthentication", "message": "token invalid"}
	})
	env.fake.handle("/topapi/smartwork/hrm/employee/listdimission", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		assert.Equal(t, "u1,u2", body["userid_list"])
		return http.StatusOK, map[string]interface{}{"errcode": 0, "result": map[string]interface{}{
			"data_list": []interface{}{map[string]interface{}{"userid": "u1"}, "bad", map[string]interface{}{"userid": "u2"}},
		}}
	})

	infos, err := env.client.ListDimissionInfos(context.Background(), []string{"u1", "u2", "u1"})
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestListDimissionRecords_InvalidMaxResultsFallback(t *testing.T) {
	env := newTestEnv(t)
	env.fake.handle("/v1.0/contact/empLeaveRecords", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		query := r.URL.Query()
		assert.Equal(t, "2024-10-01 08:00:00", query.Get("fromDate"))
		assert.Equal(t, "2025-10-01 08:00:00", query.Get("toDate"))
		assert.Equal(t, query.Get("fromDate"), query.Get("startTime"))
		if query.Get("maxResults") == "50" {
			return http.StatusOK, map[string]interface{}{"code": "InvalidMaxResults", "message": "maxResults is invalid"}
		}
		assert.Equal(t, "20", query.Get("maxResults"))
		if query.Get("nextToken") == "" {
			return http.StatusOK, map[string]interface{}{"records": []interface{}{map[string]interface{}{"userId": "u1"}}, "nextToken": "n2"}
		}
		return http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"records": []interface{}{map[string]interface{}{"userId": "u2"}}}}
	})

	records, err := env.client.ListDimissionRecords(context.Background(), time.Time{}, time.Time{}, 200)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 3, env.fake.callCount("/v1.0/contact/empLeaveRecords"))
}

func TestListDimissionRecords_NoFallbackAtSmallPageSize(t *testing.T) {
	env := newTestEnv(t)
	env.fake.handle("/v1.0/contact/empLeaveRecords", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"code": "Other", "message": "invalidMaxResults: too large"}
	})

	_, err := env.client.ListDimissionRecords(context.Background(), time.Time{}, time.Time{}, 20)
	require.Error(t, err)
	assert.Equal(t, 1, env.fake.callCount("/v1.0/contact/empLeaveRecords"))
}

func TestListDimissionRecords_StartAfterEnd(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.client.ListDimissionRecords(context.Background(), testNow, testNow.Add(-time.Hour), 50)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, MsgStartAfterEnd, apiErr.Error())
	assert.Equal(t, 0, env.fake.callCount("/v1.0/contact/empLeaveRecords"))
}

func TestListDimissionRecords_ConvertsToUTC(t *testing.T) {
	env := newTestEnv(t)
	shanghai := time.FixedZone("CST", 8*3600)
	env.fake.handle("/v1.0/contact/empLeaveRecords", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		assert.Equal(t, "2025-09-30 16:00:00", r.URL.Query().Get("fromDate"))
		assert.Equal(t, "2025-10-01 15:59:59", r.URL.Query().Get("toDate"))
		return http.StatusOK, map[string]interface{}{"records": []interface{}{}}
	})

	start := time.Date(2025, 10, 1, 0, 0, 0, 0, shanghai)
	end := time.Date(2025, 10, 1, 23, 59, 59, 0, shanghai)
	records, err := env.client.ListDimissionRecords(context.Background(), start, end, 50)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListRosterInfos(t *testing.T) {
	env := newTestEnv(t)
	env.fake.handle("/v1.0/hrm/rosters/lists/query", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		assert.Equal(t, "agent-1", body["appAgentId"])
		assert.Equal(t, true, body["text2SelectConvert"])
		assert.Equal(t, []interface{}{"u1", "u2"}, body["userIdList"])
		assert.Equal(t, []interface{}{"sys00-name", "sys00-mainDept"}, body["fieldFilterList"])
		return http.StatusOK, map[string]interface{}{"result": []interface{}{
			map[string]interface{}{
				"userId": "u1",
				"fieldDataList": []interface{}{
					map[string]interface{}{"fieldCode": "sys00-name", "fieldValueList": []interface{}{map[string]interface{}{"value": "张三", "label": "张三"}}},
					map[string]interface{}{"fieldCode": "sys00-mainDept", "fieldValueList": []interface{}{map[string]interface{}{"value": "12", "label": "研发部"}}},
					map[string]interface{}{"fieldCode": "sys00-dept", "fieldValueList": []interface{}{map[string]interface{}{"value": "12"}, map[string]interface{}{"value": "13"}}},
					map[string]interface{}{"fieldCode": "sys00-email", "fieldValueList": []interface{}{}},
				},
			},
		}}
	})

	roster, err := env.client.ListRosterInfos(context.Background(), []string{"u1", "u2", "u1"}, []string{"sys00-name", "sys00-mainDept", "sys00-name"})
	require.NoError(t, err)
	require.Contains(t, roster, "u1")

	fields := roster["u1"]
	assert.Equal(t, models.RosterField{Value: "张三", Label: "张三", Values: []string{"张三"}}, fields["sys00-name"])
	assert.Equal(t, "12", fields["sys00-mainDept"].Value)
	assert.Equal(t, "研发部", fields["sys00-mainDept"].Label)
	assert.Equal(t, []string{"12", "13"}, fields["sys00-dept"].Values)
	assert.NotContains(t, fields, "sys00-email")
}

func TestListRosterInfos_FallbackToLegacy(t *testing.T) {
	env := newTestEnv(t)
	env.fake.handle("/v1.0/hrm/rosters/lists/query", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"code": "Forbidden", "message": "denied"}
	})
	env.fake.handle("/topapi/smartwork/hrm/employee/v2/list", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
		assert.Equal(t, "u1", body["userid_list"])
		assert.Equal(t, "agent-1", body["agentid"])
		return http.StatusOK, map[string]interface{}{"errcode": 0, "result": map[string]interface{}{"data_list": []interface{}{
			map[string]interface{}{"userid": "u1", "field_data_list": []interface{}{
				map[string]interface{}{"field_code": "sys00-mobile", "field_value_list": []interface{}{map[string]interface{}{"value": "13800000000"}}},
			}},
		}}}
	})

	roster, err := env.client.ListRosterInfos(context.Background(), []string{"u1"}, []string{"sys00-mobile"})
	require.NoError(t, err)
	assert.Equal(t, "13800000000", roster["u1"]["sys00-mobile"].Value)
}

func TestListRosterInfos_EmptyInput(t *testing.T) {
	env := newTestEnv(t)

	roster, err := env.client.ListRosterInfos(context.Background(), nil, []string{"sys00-name"})
	require.NoError(t, err)
	assert.Empty(t, roster)

	roster, err = env.client.ListRosterInfos(context.Background(), []string{"u1"}, nil)
	require.NoError(t, err)
	assert.Empty(t, roster)
	assert.Equal(t, 0, env.fake.callCount("/gettoken"))
}
