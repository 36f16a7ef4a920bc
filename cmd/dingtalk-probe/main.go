// dingtalk-probe 诊断钉钉接口：输出令牌状态、离职人员ID、离职详情、离职记录，可选输出在职人员。
// 只读取配置并调用钉钉接口，不写入快照与同步日志。
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"dingtalk-sync-service/cmd/internal/bootstrap"
	"dingtalk-sync-service/service/dingtalk/dingtalk_client"
	"dingtalk-sync-service/service/meta"
	"dingtalk-sync-service/service/utils"

	"github.com/juju/gnuflag"
	"github.com/spf13/cast"
)

type probe struct {
	client   *dingtalk_client.Client
	out      io.Writer
	encoding string
	sample   int
}

func main() {
	var (
		configID    string
		days        int
		sample      int
		maxResults  int
		activeUsers bool
		encoding    string
	)

	flags := gnuflag.NewFlagSet("dingtalk-probe", gnuflag.ExitOnError)
	flags.StringVar(&configID, "config", meta.DingTalkDefaultConfigID, "配置ID")
	flags.IntVar(&days, "days", 30, "离职记录回溯天数")
	flags.IntVar(&sample, "sample", 5, "每类数据输出的样例条数")
	flags.IntVar(&maxResults, "max-results", 50, "离职人员ID分页大小")
	flags.BoolVar(&activeUsers, "active-users", false, "同时输出在职人员")
	flags.StringVar(&encoding, "encoding", "utf-8", "输出编码: utf-8/gbk")
	if err := flags.Parse(true, os.Args[1:]); err != nil {
		os.Exit(2)
	}

	env, err := bootstrap.Load()
	if err != nil {
		slog.Error("初始化失败", "error", err)
		os.Exit(1)
	}
	defer env.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	config, err := env.Store.GetConfig(ctx, configID)
	if err != nil {
		slog.Error("加载配置失败", "config_id", configID, "error", err)
		os.Exit(1)
	}
	opts := env.ClientOptions
	opts.TokenStore = env.Store
	client, err := dingtalk_client.NewClient(config, opts)
	if err != nil {
		slog.Error("创建钉钉客户端失败", "config_id", configID, "error", err)
		os.Exit(1)
	}

	p := &probe{client: client, out: os.Stdout, encoding: encoding, sample: sample}
	if err := p.run(ctx, days, maxResults, activeUsers); err != nil {
		slog.Error("诊断失败", "config_id", configID, "error", err)
		os.Exit(1)
	}
}

func (p *probe) run(ctx context.Context, days, maxResults int, activeUsers bool) error {
	token, err := p.client.GetAccessToken(ctx, false)
	if err != nil {
		return fmt.Errorf("获取访问令牌失败: %w", err)
	}
	p.section("访问令牌", map[string]interface{}{"token": utils.MaskSecret(token)})

	userIDs, err := p.client.ListDimissionUserIDs(ctx, maxResults)
	if err != nil {
		p.failed("离职人员ID", err)
	} else {
		p.section("离职人员ID", map[string]interface{}{"count": len(userIDs), "sample": head(userIDs, p.sample)})
	}

	if len(userIDs) > 0 {
		infos, err := p.client.ListDimissionInfos(ctx, head(userIDs, p.sample))
		if err != nil {
			p.failed("离职详情", err)
		} else {
			p.section("离职详情", infos)
		}
	}

	end := time.Now()
	records, err := p.client.ListDimissionRecords(ctx, end.AddDate(0, 0, -days), end, maxResults)
	if err != nil {
		p.failed("离职记录", err)
	} else {
		p.section("离职记录", map[string]interface{}{"count": len(records), "sample": head(records, p.sample)})
	}

	if activeUsers {
		depts, err := p.client.ListDepartments(ctx, meta.DingTalkRootDepartmentID)
		if err != nil {
			p.failed("部门", err)
			return nil
		}
		deptIDs := []int64{meta.DingTalkRootDepartmentID}
		for _, dept := range depts {
			if id, ok := dept["dept_id"]; ok {
				deptIDs = append(deptIDs, cast.ToInt64(id))
			}
		}
		users, err := p.client.ListAllUsers(ctx, deptIDs)
		if err != nil {
			p.failed("在职人员", err)
		} else {
			p.section("在职人员", map[string]interface{}{"departments": len(deptIDs), "count": len(users), "sample": maskMobiles(head(users, p.sample))})
		}
	}
	return nil
}

func (p *probe) section(title string, value interface{}) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "== %s\n", title)
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(value)
	p.write(buf.Bytes())
}

func (p *probe) failed(title string, err error) {
	detail := err.Error()
	if apiErr, ok := dingtalk_client.AsAPIError(err); ok {
		detail = fmt.Sprintf("%s (code=%s)", apiErr.Detail(), apiErr.Code())
	}
	p.write([]byte(fmt.Sprintf("== %s\n失败: %s\n", title, detail)))
}

func (p *probe) write(data []byte) {
	converted, err := utils.ConvertEncoding(data, "utf-8", p.encoding)
	if err != nil {
		converted = data
	}
	_, _ = p.out.Write(converted)
}

// maskMobiles 脱敏样例中的手机号，不修改原始数据
func maskMobiles(users []map[string]interface{}) []map[string]interface{} {
	masked := make([]map[string]interface{}, 0, len(users))
	for _, user := range users {
		item := make(map[string]interface{}, len(user))
		for key, value := range user {
			item[key] = value
		}
		if mobile, ok := item["mobile"].(string); ok {
			item["mobile"] = utils.MaskPhone(mobile)
		}
		masked = append(masked, item)
	}
	return masked
}

func head[T any](items []T, n int) []T {
	if n < 0 || len(items) <= n {
		return items
	}
	return items[:n]
}
