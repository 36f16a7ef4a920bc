package controllers

import (
	"net/http"

	"github.com/go-chi/render"
)

// APIResponse 统一API响应结构
type APIResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data,omitempty"`
}

// PaginatedResponse 分页响应结构
type PaginatedResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data"`
	Total  int64       `json:"total" example:"100"`
	Page   int         `json:"page" example:"1"`
	Size   int         `json:"size" example:"10"`
}

// SuccessResponse 成功响应
func SuccessResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: 0, Msg: msg, Data: data}
}

// ErrorResponse 失败响应，err 不为空时拼接到消息后
func ErrorResponse(msg string, err error) *APIResponse {
	if err != nil {
		if msg == "" {
			msg = err.Error()
		} else {
			msg = msg + ": " + err.Error()
		}
	}
	return &APIResponse{Status: 1, Msg: msg}
}

// writeResponse 按HTTP状态码输出JSON响应
func writeResponse(w http.ResponseWriter, r *http.Request, statusCode int, response interface{}) {
	render.Status(r, statusCode)
	render.JSON(w, r, response)
}

func writeSuccess(w http.ResponseWriter, r *http.Request, msg string, data interface{}) {
	writeResponse(w, r, http.StatusOK, SuccessResponse(msg, data))
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, msg string, err error) {
	writeResponse(w, r, statusCode, ErrorResponse(msg, err))
}
