package protocol

// ReportData 探针上报的数据
// HTTP 上报时 UUID 必填；WebSocket 上报时身份固定在连接上，消息内的 UUID 被忽略。
// 指标字段使用指针区分「未上报」和「值为 0」。
type ReportData struct {
	UUID     string `json:"uuid"`
	Name     string `json:"name"`      // 主机名
	OS       string `json:"os"`        // 操作系统信息
	Uptime   uint64 `json:"uptime"`    // 运行时间(秒)
	CPUCores int    `json:"cpu_cores"` // CPU 核心数
	RAMTotal uint64 `json:"ram_total"` // 内存总量(字节)
	PublicIP string `json:"public_ip"` // 公网 IP（可选，覆盖观测到的地址）

	CPU    *float64 `json:"cpu"`     // CPU 使用率
	RAM    *float64 `json:"ram"`     // 内存使用率
	Disk   *float64 `json:"disk"`    // 磁盘使用率
	NetIn  *uint64  `json:"net_in"`  // 网络入站速率(字节/秒)
	NetOut *uint64  `json:"net_out"` // 网络出站速率(字节/秒)
	Load1  *float64 `json:"load_1"`  // 1分钟负载
	Load5  *float64 `json:"load_5"`  // 5分钟负载
	Load15 *float64 `json:"load_15"` // 15分钟负载
}
