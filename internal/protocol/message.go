package protocol

import "encoding/json"

// 服务端下发消息类型
const (
	MessageTypeExit   = "exit"   // 要求探针退出
	MessageTypeNotice = "notice" // 通知消息（探针仅记录日志）
)

// WebSocket 应用层关闭码
// 4000 段为应用自定义，区别于 RFC 6455 标准码。
const (
	CloseCodeInvalidSecret = 4001 // 密钥校验失败
	CloseCodeNotRegistered = 4003 // 节点未注册
)

// Command 服务端下发给探针的指令
type Command struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}
