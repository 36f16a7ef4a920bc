package dingtalk_client

import (
	"context"
	"strings"

	"dingtalk-sync-service/service/meta"
	"dingtalk-sync-service/service/models"

	"github.com/spf13/cast"
)

const rosterBatchSize = 50

// ListRosterInfos 批量查询员工花名册字段，ID 与字段编码去重后每50人一批
func (c *Client) ListRosterInfos(ctx context.Context, userIDs []string, fieldCodes []string) (models.RosterInfos, error) {
	ids := dedupStrings(userIDs)
	if len(ids) == 0 {
		return models.RosterInfos{}, nil
	}
	fields := dedupStrings(fieldCodes)
	if len(fields) == 0 {
		return models.RosterInfos{}, nil
	}

	var items []map[string]interface{}
	err := c.withFallback(endpointRosterInfos,
		func() error {
			var err error
			items, err = c.listRosterInfosOpenAPI(ctx, ids, fields)
			return err
		},
		func() error {
			var err error
			items, err = c.listRosterInfosLegacy(ctx, ids, fields)
			return err
		})
	if err != nil {
		return nil, err
	}

	return parseRosterItems(items), nil
}

func (c *Client) listRosterInfosOpenAPI(ctx context.Context, userIDs, fieldCodes []string) ([]map[string]interface{}, error) {
	var results []map[string]interface{}
	for _, batch := range chunkStrings(userIDs, rosterBatchSize) {
		if err := c.acquire(ctx, meta.RateBucketRosterInfo, meta.RosterRateLimit); err != nil {
			return nil, err
		}
		body := map[string]interface{}{
			"userIdList":         batch,
			"fieldFilterList":    fieldCodes,
			"text2SelectConvert": true,
		}
		if c.config.AgentID != "" {
			body["appAgentId"] = c.config.AgentID
		}
		payload, err := c.requestOpenAPI(ctx, "POST", "/v1.0/hrm/rosters/lists/query", body)
		if err != nil {
			return nil, err
		}

		records := firstPresent(payload["result"], payload["data"], payload["records"], payload["body"])
		if object, ok := records.(map[string]interface{}); ok {
			records = firstPresent(object["data"], object["records"])
		}
		results = append(results, asObjects(records)...)
	}
	return results, nil
}

func (c *Client) listRosterInfosLegacy(ctx context.Context, userIDs, fieldCodes []string) ([]map[string]interface{}, error) {
	token, err := c.GetAccessToken(ctx, false)
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for _, batch := range chunkStrings(userIDs, rosterBatchSize) {
		if err := c.acquire(ctx, meta.RateBucketRosterInfo, meta.RosterRateLimit); err != nil {
			return nil, err
		}
		body := map[string]interface{}{
			"userid_list":         strings.Join(batch, ","),
			"field_filter_list":   fieldCodes,
			"text2select_convert": true,
		}
		if c.config.AgentID != "" {
			body["agentid"] = c.config.AgentID
		}
		payload, err := c.request(ctx, "POST", "/topapi/smartwork/hrm/employee/v2/list", nil, body, token)
		if err != nil {
			return nil, err
		}

		result := asMap(payload["result"])
		results = append(results, asObjects(firstPresent(result["data_list"], result["dataList"]))...)
	}
	return results, nil
}

// parseRosterItems 解析花名册记录：字段取 fieldValueList 第一项的 value（缺省取 label），
// values 保留全部非空值；value 与 label 均为空的字段忽略
func parseRosterItems(items []map[string]interface{}) models.RosterInfos {
	roster := make(models.RosterInfos)
	for _, item := range items {
		userID := cast.ToString(firstPresent(item["userId"], item["userid"]))
		if userID == "" {
			continue
		}

		parsed := make(map[string]models.RosterField)
		for _, entry := range asObjects(firstPresent(item["fieldDataList"], item["field_data_list"])) {
			code := cast.ToString(firstPresent(entry["fieldCode"], entry["field_code"]))
			if code == "" {
				continue
			}

			var field models.RosterField
			rawValues := firstPresent(entry["fieldValueList"], entry["field_value_list"])
			switch values := rawValues.(type) {
			case []interface{}:
				if len(values) == 0 {
					continue
				}
				if first, ok := values[0].(map[string]interface{}); ok {
					field.Label = cast.ToString(first["label"])
					field.Value = cast.ToString(firstPresent(first["value"], first["label"]))
				} else {
					field.Value = cast.ToString(values[0])
				}
				for _, value := range values {
					var text string
					if object, ok := value.(map[string]interface{}); ok {
						text = cast.ToString(firstPresent(object["value"], object["label"]))
					} else {
						text = cast.ToString(value)
					}
					if text != "" {
						field.Values = append(field.Values, text)
					}
				}
			case nil:
			default:
				field.Value = cast.ToString(values)
				if field.Value != "" {
					field.Values = []string{field.Value}
				}
			}

			if field.Value == "" && field.Label == "" {
				continue
			}
			parsed[code] = field
		}
		roster[userID] = parsed
	}
	return roster
}
