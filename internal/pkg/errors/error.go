package errors

import (
	"errors"
	"strconv"
	"strings"
)

// AppError 带业务错误码的错误，由 response 包渲染为统一响应
type AppError struct {
	Code    int
	Message string // 错误码对应的默认提示
	Err     error  // 原始错误，可为空
	Details string // 附加说明，例如条目 id
}

func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(strconv.Itoa(e.Code))
	b.WriteString("] ")
	b.WriteString(e.Message)
	switch {
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Details != "":
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	return b.String()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus 错误码对应的 HTTP 状态
func (e *AppError) HTTPStatus() int {
	return GetHTTPStatus(e.Code)
}

func firstDetail(details []string) string {
	if len(details) == 0 {
		return ""
	}
	return details[0]
}

// New 按错误码创建错误
func New(code int, details ...string) *AppError {
	return &AppError{Code: code, Message: GetMessage(code), Details: firstDetail(details)}
}

// Wrap attaches code to err. An err that already carries a code keeps it;
// only a non-empty detail replaces the existing one.
func Wrap(err error, code int, details ...string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if d := firstDetail(details); d != "" {
			appErr.Details = d
		}
		return appErr
	}
	return &AppError{Code: code, Message: GetMessage(code), Err: err, Details: firstDetail(details)}
}

// ExtractCode 取出错误码，普通错误视为内部错误
func ExtractCode(err error) int {
	if appErr, ok := asAppError(err); ok {
		return appErr.Code
	}
	return ErrInternalServer
}

// GetDetails 返回展示给调用方的说明：Details 优先，其次原始错误
func GetDetails(err error) string {
	if err == nil {
		return ""
	}
	appErr, ok := asAppError(err)
	switch {
	case !ok:
		return err.Error()
	case appErr.Details != "":
		return appErr.Details
	case appErr.Err != nil:
		return appErr.Err.Error()
	default:
		return ""
	}
}

func asAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}
