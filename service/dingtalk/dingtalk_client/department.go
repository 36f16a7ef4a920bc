package dingtalk_client

import (
	"context"

	"dingtalk-sync-service/service/meta"

	"github.com/spf13/cast"
)

// GetDepartment 获取部门详情
func (c *Client) GetDepartment(ctx context.Context, deptID int64, accessToken string) (map[string]interface{}, error) {
	if accessToken == "" {
		token, err := c.GetAccessToken(ctx, false)
		if err != nil {
			return nil, err
		}
		accessToken = token
	}

	if err := c.acquire(ctx, meta.RateBucketDepartment, meta.DefaultRateLimit); err != nil {
		return nil, err
	}
	payload, err := c.request(ctx, "POST", "/topapi/v2/department/get", nil, map[string]interface{}{
		"dept_id":  deptID,
		"language": "zh_CN",
	}, accessToken)
	if err != nil {
		return nil, err
	}
	return asMap(payload["result"]), nil
}

// ListDepartments 从根部门开始递归拉取整棵部门树（先序），已访问的部门不会重复拉取
func (c *Client) ListDepartments(ctx context.Context, rootDeptID int64) ([]map[string]interface{}, error) {
	if rootDeptID == 0 {
		rootDeptID = meta.DingTalkRootDepartmentID
	}

	token, err := c.GetAccessToken(ctx, false)
	if err != nil {
		return nil, err
	}

	visited := make(map[int64]struct{})
	var results []map[string]interface{}

	var walk func(deptID int64) error
	walk = func(deptID int64) error {
		if err := c.acquire(ctx, meta.RateBucketDepartment, meta.DefaultRateLimit); err != nil {
			return err
		}
		payload, err := c.request(ctx, "POST", "/topapi/v2/department/listsub", nil, map[string]interface{}{
			"dept_id":  deptID,
			"language": "zh_CN",
		}, token)
		if err != nil {
			return err
		}

		var children []map[string]interface{}
		switch result := payload["result"].(type) {
		case map[string]interface{}:
			children = asObjects(result["dept_list"])
		case []interface{}:
			children = asObjects(result)
		}

		for _, dept := range children {
			childID, err := cast.ToInt64E(dept["dept_id"])
			if dept["dept_id"] == nil || err != nil {
				continue
			}
			if _, ok := visited[childID]; ok {
				continue
			}
			visited[childID] = struct{}{}
			results = append(results, dept)
			if err := walk(childID); err != nil {
				return err
			}
		}
		return nil
	}

	root, err := c.GetDepartment(ctx, rootDeptID, token)
	if err != nil {
		return nil, err
	}

	startID := rootDeptID
	if len(root) > 0 {
		if id, err := cast.ToInt64E(root["dept_id"]); err == nil && root["dept_id"] != nil {
			startID = id
		}
		visited[startID] = struct{}{}
		results = append(results, root)
	}
	if err := walk(startID); err != nil {
		return nil, err
	}
	return results, nil
}
