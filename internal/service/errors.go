package service

import "errors"

// 上报处理的错误分类。调用方用 errors.Is 判断，不做错误字符串匹配。
var (
	// ErrNotRegistered 节点未注册。上报永远不会隐式创建节点，
	// 注册只能通过管理接口完成。
	ErrNotRegistered = errors.New("节点未注册")

	// ErrInvalidSecret 密钥校验失败
	ErrInvalidSecret = errors.New("密钥校验失败")

	// ErrDuplicateUUID 创建节点时 UUID 已被占用
	ErrDuplicateUUID = errors.New("节点 UUID 已存在")
)
