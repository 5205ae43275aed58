package agent

// Version 编译时通过 -ldflags 注入
var Version = "dev"

// GetVersion 当前探针版本
func GetVersion() string {
	return Version
}
