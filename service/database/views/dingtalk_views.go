package views

// DingTalkViews 钉钉同步相关视图，仅在 PostgreSQL 上创建
var DingTalkViews = map[string]string{

	// 每个配置每种操作最近一次同步日志
	"dingtalk_sync_latest_log": `
		DROP VIEW IF EXISTS dingtalk_sync_latest_log;
		CREATE VIEW dingtalk_sync_latest_log AS
		SELECT DISTINCT ON (l.config_id, l.operation)
			l.id,
			l.config_id,
			c.name AS config_name,
			l.operation,
			l.status,
			l.level,
			l.message,
			l.stats,
			l.created_at
		FROM dingtalk_sync_log l
		LEFT JOIN dingtalk_config c ON c.id = l.config_id
		ORDER BY l.config_id, l.operation, l.created_at DESC;
	`,

	// 用户快照及其所属部门名称，部门可能尚未同步
	"dingtalk_user_info": `
		DROP VIEW IF EXISTS dingtalk_user_info;
		CREATE VIEW dingtalk_user_info AS
		SELECT
			u.config_id,
			u.userid,
			u.name,
			u.mobile,
			u.email,
			u.active,
			u.job_number,
			u.title,
			u.dept_ids,
			COALESCE((
				SELECT jsonb_agg(d.name ORDER BY d.dept_id)
				FROM dingtalk_department d
				WHERE d.config_id = u.config_id
					AND u.dept_ids @> to_jsonb(d.dept_id)
			), '[]'::jsonb) AS dept_names,
			u.updated_at
		FROM dingtalk_user u;
	`,
}
