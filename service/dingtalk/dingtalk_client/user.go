package dingtalk_client

import (
	"context"
	"sort"

	"dingtalk-sync-service/service/meta"

	"github.com/spf13/cast"
)

// userPageSize 用户列表分页大小
const userPageSize = 100

// ListUsersByDept 按部门分页拉取用户详情
func (c *Client) ListUsersByDept(ctx context.Context, deptID int64) ([]map[string]interface{}, error) {
	token, err := c.GetAccessToken(ctx, false)
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	var cursor interface{} = 0
	for {
		if err := c.acquire(ctx, meta.RateBucketUser, meta.DefaultRateLimit); err != nil {
			return nil, err
		}
		payload, err := c.request(ctx, "POST", "/topapi/v2/user/list", nil, map[string]interface{}{
			"dept_id":  deptID,
			"cursor":   cursor,
			"size":     userPageSize,
			"language": "zh_CN",
		}, token)
		if err != nil {
			return nil, err
		}

		result := asMap(payload["result"])
		results = append(results, asObjects(result["list"])...)

		next := result["next_cursor"]
		if !truthy(next) {
			break
		}
		cursor = next
	}
	return results, nil
}

// ListAllUsers 拉取多个部门的用户并按 userid 合并：
// dept_id_list 取并集升序，后出现的非空字段覆盖先前的值
func (c *Client) ListAllUsers(ctx context.Context, deptIDs []int64) ([]map[string]interface{}, error) {
	aggregated := make(map[string]map[string]interface{})
	var order []string

	for _, deptID := range deptIDs {
		users, err := c.ListUsersByDept(ctx, deptID)
		if err != nil {
			return nil, err
		}

		for _, user := range users {
			userID := cast.ToString(user["userid"])
			if userID == "" {
				continue
			}

			current, ok := aggregated[userID]
			if !ok {
				aggregated[userID] = user
				order = append(order, userID)
				continue
			}

			merged := mergeDeptIDList(current["dept_id_list"], user["dept_id_list"])
			for key, value := range user {
				if value == nil || value == "" {
					continue
				}
				current[key] = value
			}
			current["dept_id_list"] = merged
		}
	}

	results := make([]map[string]interface{}, 0, len(order))
	for _, userID := range order {
		results = append(results, aggregated[userID])
	}
	return results, nil
}

func mergeDeptIDList(values ...interface{}) []interface{} {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, value := range values {
		items, ok := value.([]interface{})
		if !ok {
			continue
		}
		for _, item := range items {
			id, err := cast.ToInt64E(item)
			if err != nil {
				continue
			}
			if _, exists := seen[id]; exists {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	result := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		result = append(result, id)
	}
	return result
}
