package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Client 一条已鉴权的探针连接
// secret 是建连时的密钥快照，该连接后续所有消息都用它鉴权。
type Client struct {
	UUID   string
	Secret string

	conn   *websocket.Conn
	sendMu sync.Mutex // gorilla 连接不允许并发写
}

func NewClient(uuid, secret string, conn *websocket.Conn) *Client {
	return &Client{
		UUID:   uuid,
		Secret: secret,
		conn:   conn,
	}
}

// Write 向连接写入一条文本消息
func (c *Client) Write(message []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// Ping 发送保活探测帧
func (c *Client) Ping() error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// CloseWith 发送带状态码的关闭帧后关闭连接
func (c *Client) CloseWith(code int, reason string) {
	c.sendMu.Lock()
	message := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
	c.sendMu.Unlock()
	_ = c.conn.Close()
}

// Close 直接关闭底层连接
func (c *Client) Close() {
	_ = c.conn.Close()
}

// Manager 在线连接注册表：节点 UUID -> 活动连接
// 纯内存结构，进程重启后所有条目丢失，探针重连时重新注册。
type Manager struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// Register 注册连接。同一 UUID 的旧连接被新连接覆盖（不主动关闭旧连接，
// 旧连接只是从注册表不可达，由它自己的保活超时走正常关闭流程）。
func (m *Manager) Register(client *Client) {
	m.mu.Lock()
	prev, displaced := m.clients[client.UUID]
	m.clients[client.UUID] = client
	m.mu.Unlock()

	if displaced && prev != client {
		m.logger.Info("connection displaced by newer one", zap.String("uuid", client.UUID))
	}
}

// Get 查找节点的活动连接
func (m *Manager) Get(uuid string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[uuid]
	return client, ok
}

// Unregister 移除节点的连接，key 不存在时是无操作
func (m *Manager) Unregister(uuid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, uuid)
}

// UnregisterClient 仅当注册表里仍是该连接时才移除
// 被新连接顶替的旧连接关闭时不能误删新连接的条目。
func (m *Manager) UnregisterClient(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.clients[client.UUID]; ok && current == client {
		delete(m.clients, client.UUID)
	}
}

// SendToNode 向指定节点投递消息，尽力而为：节点不在线或写入失败返回 false
func (m *Manager) SendToNode(uuid string, message []byte) bool {
	client, ok := m.Get(uuid)
	if !ok {
		return false
	}
	if err := client.Write(message); err != nil {
		m.logger.Debug("向探针写入消息失败", zap.String("uuid", uuid), zap.Error(err))
		return false
	}
	return true
}

// OnlineNodeIDs 返回当前所有在线连接的节点 UUID
func (m *Manager) OnlineNodeIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.clients))
	for uuid := range m.clients {
		ids = append(ids, uuid)
	}
	return ids
}

// Count 当前在线连接数
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}
