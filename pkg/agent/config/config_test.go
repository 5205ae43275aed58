package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
)

func useMemFs(t *testing.T) afero.Fs {
	t.Helper()

	orig := Fs
	Fs = afero.NewMemMapFs()
	t.Cleanup(func() { Fs = orig })
	return Fs
}

func writeConfig(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
}

func TestLoad(t *testing.T) {
	fs := useMemFs(t)

	writeConfig(t, fs, "agent.yaml", `
server:
  endpoint: ws://example.com/api/agent/ws
  secret: my-secret
agent:
  interval: 5
`)

	cfg, err := Load("agent.yaml")
	if err != nil {
		t.Fatalf("Load() 失败: %v", err)
	}

	if cfg.Server.Endpoint != "ws://example.com/api/agent/ws" {
		t.Errorf("Endpoint = %s", cfg.Server.Endpoint)
	}
	if cfg.GetInterval() != 5*time.Second {
		t.Errorf("GetInterval() = %v, want 5s", cfg.GetInterval())
	}
	if !cfg.UseWebSocket() {
		t.Error("ws:// 端点应该走长连接")
	}
}

func TestLoadGeneratesUUID(t *testing.T) {
	fs := useMemFs(t)

	writeConfig(t, fs, "agent.yaml", `
server:
  endpoint: http://example.com/api/report
  secret: my-secret
`)

	cfg, err := Load("agent.yaml")
	if err != nil {
		t.Fatalf("Load() 失败: %v", err)
	}
	if cfg.Agent.UUID == "" {
		t.Fatal("首次加载应该生成 UUID")
	}

	// UUID 必须落盘，重启后保持不变
	again, err := Load("agent.yaml")
	if err != nil {
		t.Fatalf("第二次 Load() 失败: %v", err)
	}
	if again.Agent.UUID != cfg.Agent.UUID {
		t.Errorf("UUID 重启后变了: %s -> %s", cfg.Agent.UUID, again.Agent.UUID)
	}
}

func TestLoadValidation(t *testing.T) {
	fs := useMemFs(t)

	t.Run("缺少 endpoint", func(t *testing.T) {
		writeConfig(t, fs, "no-endpoint.yaml", `
server:
  secret: my-secret
`)
		if _, err := Load("no-endpoint.yaml"); err == nil {
			t.Error("缺少 endpoint 应该报错")
		}
	})

	t.Run("缺少 secret", func(t *testing.T) {
		writeConfig(t, fs, "no-secret.yaml", `
server:
  endpoint: ws://example.com/ws
`)
		if _, err := Load("no-secret.yaml"); err == nil {
			t.Error("缺少 secret 应该报错")
		}
	})

	t.Run("文件不存在", func(t *testing.T) {
		if _, err := Load("missing.yaml"); err == nil {
			t.Error("文件不存在应该报错")
		}
	})
}

func TestGetIntervalDefault(t *testing.T) {
	cfg := &Config{}
	if cfg.GetInterval() != 2*time.Second {
		t.Errorf("缺省间隔应该是 2s，实际 %v", cfg.GetInterval())
	}
}

func TestUseWebSocket(t *testing.T) {
	cases := []struct {
		endpoint string
		want     bool
	}{
		{"ws://example.com/ws", true},
		{"wss://example.com/ws", true},
		{"http://example.com/api/report", false},
		{"https://example.com/api/report", false},
	}
	for _, c := range cases {
		cfg := &Config{Server: ServerConfig{Endpoint: c.endpoint}}
		if got := cfg.UseWebSocket(); got != c.want {
			t.Errorf("UseWebSocket(%s) = %v, want %v", c.endpoint, got, c.want)
		}
	}
}
