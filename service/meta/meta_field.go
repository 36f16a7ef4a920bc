package meta

// MetaField 枚举项定义，供前端下拉选项与参数校验使用
type MetaField struct {
	Name         string      `json:"name"`
	DisplayName  string      `json:"display_name"`
	Type         string      `json:"type"`
	Required     bool        `json:"required"`
	DefaultValue interface{} `json:"default_value"`
	Description  string      `json:"description"`
}

// FindMetaField 按名称查找枚举项
func FindMetaField(fields []MetaField, name string) (MetaField, bool) {
	for _, field := range fields {
		if field.Name == name {
			return field, true
		}
	}
	return MetaField{}, false
}
