package services

import (
	"errors"
	"fmt"
	"strings"
)

// Kind 错误类别, 决定 HTTP 状态码
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindPermission
	KindConflict
	KindUnauthenticated
	KindRateLimited
)

// Error 业务错误, Code 为机器可读标识, Message 面向用户
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Is 值相等即视为同一错误, ErrConflict 每次构造的新值也能匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return *e == *t
}

// KindOf 取错误类别, 非业务错误视为内部错误
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrMissingParams      = newError(KindValidation, "missing-params", "缺少必要参数")
	ErrInvalidBody        = newError(KindValidation, "invalid-body", "请求体格式不正确")
	ErrInvalidID          = newError(KindValidation, "invalid-id", "ID 格式不正确")
	ErrInvalidName        = newError(KindValidation, "invalid-name", "名称不能为空")
	ErrTextTooLong        = newError(KindValidation, "text-too-long", "消息内容过长")
	ErrInvalidEmail       = newError(KindValidation, "invalid-email", "邮箱格式不正确")
	ErrRoomNotFound       = newError(KindNotFound, "not-found", "房间不存在")
	ErrMessageNotFound    = newError(KindNotFound, "not-found", "消息不存在")
	ErrUserNotFound       = newError(KindNotFound, "not-found", "用户不存在")
	ErrNotOwner           = newError(KindPermission, "not-owner", "只有房主可以执行此操作")
	ErrNotMember          = newError(KindPermission, "not-member", "你不是该房间成员")
	ErrNotAuthor          = newError(KindPermission, "not-author", "只能撤回自己的消息")
	ErrInvalidCredentials = newError(KindUnauthenticated, "invalid-credentials", "邮箱或密码错误")
	ErrUnauthenticated    = newError(KindUnauthenticated, "unauthenticated", "未登录或登录已过期")
	ErrRateLimited        = newError(KindRateLimited, "rate-limited", "操作过于频繁, 请稍后再试")
	ErrInternal           = newError(KindInternal, "internal", "服务器内部错误")
)

// ErrConflict 唯一约束冲突, 提示中列出冲突字段
func ErrConflict(fields ...string) *Error {
	return newError(KindConflict, "conflict", fmt.Sprintf("%s 已存在", strings.Join(fields, ", ")))
}
