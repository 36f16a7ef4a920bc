package models

// RosterField 花名册字段值：Value 优先取 value，缺省取 label；Values 保留全部非空值
type RosterField struct {
	Value  string   `json:"value"`
	Label  string   `json:"label"`
	Values []string `json:"values"`
}

// RosterInfos userid -> 字段编码 -> 字段值
type RosterInfos map[string]map[string]RosterField
