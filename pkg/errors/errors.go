// Package errors 定义业务错误类型和错误码
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error 业务错误
type Error struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	HTTPStatus int               `json:"-"`
	Cause      error             `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
	Violations []string          `json:"violations,omitempty"` // 校验错误时列出全部违反项
}

func (e *Error) Error() string {
	if len(e.Violations) > 0 {
		return fmt.Sprintf("%s: %s [%s]", e.Code, e.Message, strings.Join(e.Violations, "; "))
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 实现 errors.Is 接口
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Copy 复制错误
func (e *Error) Copy() *Error {
	newErr := &Error{
		Code:       e.Code,
		Message:    e.Message,
		HTTPStatus: e.HTTPStatus,
		Cause:      e.Cause,
	}
	if e.Details != nil {
		newErr.Details = make(map[string]string)
		for k, v := range e.Details {
			newErr.Details[k] = v
		}
	}
	if e.Violations != nil {
		newErr.Violations = append([]string(nil), e.Violations...)
	}
	return newErr
}

// WithDetails 添加详情
func (e *Error) WithDetails(details map[string]string) *Error {
	newErr := e.Copy()
	if newErr.Details == nil {
		newErr.Details = make(map[string]string)
	}
	for k, v := range details {
		newErr.Details[k] = v
	}
	return newErr
}

// WithDetail 添加单个详情
func (e *Error) WithDetail(key, value string) *Error {
	return e.WithDetails(map[string]string{key: value})
}

// WithMessage 替换错误消息
func (e *Error) WithMessage(message string) *Error {
	newErr := e.Copy()
	newErr.Message = message
	return newErr
}

// WithMessagef 格式化替换错误消息
func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithViolations 附加校验违反项列表
// 校验错误必须携带全部违反项，而不是只报告第一个
func (e *Error) WithViolations(violations []string) *Error {
	newErr := e.Copy()
	newErr.Violations = append([]string(nil), violations...)
	return newErr
}

// JSON 返回 JSON 格式
func (e *Error) JSON() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// New 创建新错误
func New(code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewWithStatus 创建带状态码的错误
func NewWithStatus(code, message string, httpStatus int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap 包装错误
func Wrap(err *Error, cause error) *Error {
	newErr := err.Copy()
	newErr.Cause = cause
	return newErr
}

// Wrapf 包装错误并添加信息
func Wrapf(err *Error, format string, args ...interface{}) *Error {
	newErr := err.Copy()
	newErr.Message = fmt.Sprintf("%s: %s", err.Message, fmt.Sprintf(format, args...))
	return newErr
}

// FromError 从标准错误转换
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr
	}

	return Wrap(ErrInternal, err)
}

// 通用错误码
var (
	ErrInternal           = NewWithStatus("INTERNAL_ERROR", "内部错误", http.StatusInternalServerError)
	ErrInvalidRequest     = NewWithStatus("INVALID_REQUEST", "请求参数无效", http.StatusBadRequest)
	ErrUnauthorized       = NewWithStatus("UNAUTHORIZED", "未授权", http.StatusUnauthorized)
	ErrForbidden          = NewWithStatus("FORBIDDEN", "禁止访问", http.StatusForbidden)
	ErrNotFound           = NewWithStatus("NOT_FOUND", "资源不存在", http.StatusNotFound)
	ErrConflict           = NewWithStatus("CONFLICT", "资源冲突", http.StatusConflict)
	ErrTimeout            = NewWithStatus("TIMEOUT", "请求超时", http.StatusGatewayTimeout)
	ErrServiceUnavailable = NewWithStatus("SERVICE_UNAVAILABLE", "服务不可用", http.StatusServiceUnavailable)
)

// 规则引擎业务错误码
var (
	// 规则校验
	ErrValidation     = NewWithStatus("VALIDATION_ERROR", "规则定义无效", http.StatusBadRequest)
	ErrEmptyContent   = NewWithStatus("EMPTY_CONTENT", "待优化内容不能为空", http.StatusBadRequest)
	ErrInvalidPattern = NewWithStatus("INVALID_PATTERN", "规则模式无法编译", http.StatusBadRequest)

	// 规则生命周期
	ErrRuleNotFound    = NewWithStatus("RULE_NOT_FOUND", "规则不存在", http.StatusNotFound)
	ErrRuleExists      = NewWithStatus("RULE_EXISTS", "规则已存在", http.StatusConflict)
	ErrVersionConflict = NewWithStatus("VERSION_CONFLICT", "规则版本冲突，请重新读取后重试", http.StatusConflict)
	ErrVersionNotFound = NewWithStatus("VERSION_NOT_FOUND", "规则版本不存在", http.StatusNotFound)

	// 数据库相关
	ErrDBConnection  = NewWithStatus("DB_CONNECTION_ERROR", "数据库连接失败", http.StatusInternalServerError)
	ErrDBTransaction = NewWithStatus("DB_TRANSACTION_ERROR", "数据库事务失败", http.StatusInternalServerError)

	// 缓存相关
	ErrCacheConnection = NewWithStatus("CACHE_CONNECTION_ERROR", "缓存连接失败", http.StatusInternalServerError)

	// 消息队列相关
	ErrMQPublish = NewWithStatus("MQ_PUBLISH_ERROR", "消息发布失败", http.StatusInternalServerError)
)

// ToHTTPStatus 获取 HTTP 状态码
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var bizErr *Error
	if errors.As(err, &bizErr) {
		if bizErr.HTTPStatus != 0 {
			return bizErr.HTTPStatus
		}
	}

	return http.StatusInternalServerError
}

// Is 判断错误类型
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	return errors.Is(err, target)
}

// As 提取错误类型
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// GetCode 获取错误码
func GetCode(err error) string {
	if err == nil {
		return ""
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr.Code
	}
	return "UNKNOWN"
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	if err == nil {
		return ""
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr.Message
	}
	return err.Error()
}

// IsNotFound 判断是否为未找到错误
func IsNotFound(err error) bool {
	return Is(err, ErrNotFound) || Is(err, ErrRuleNotFound) || Is(err, ErrVersionNotFound)
}

// IsConflict 判断是否为冲突错误
func IsConflict(err error) bool {
	return Is(err, ErrConflict) || Is(err, ErrVersionConflict) || Is(err, ErrRuleExists)
}

// IsValidation 判断是否为校验错误
func IsValidation(err error) bool {
	return Is(err, ErrValidation) || Is(err, ErrEmptyContent) || Is(err, ErrInvalidPattern)
}
