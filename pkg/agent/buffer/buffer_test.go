package buffer

import (
	"fmt"
	"path/filepath"
	"testing"
)

func openTestBuffer(t *testing.T) *Buffer {
	t.Helper()

	b, err := Open(filepath.Join(t.TempDir(), "buffer.db"))
	if err != nil {
		t.Fatalf("打开缓存失败: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBufferAppendAndDrain(t *testing.T) {
	b := openTestBuffer(t)

	for i := 0; i < 3; i++ {
		if err := b.Append([]byte(fmt.Sprintf("report-%d", i))); err != nil {
			t.Fatalf("Append() 失败: %v", err)
		}
	}

	if n, _ := b.Len(); n != 3 {
		t.Errorf("Len() = %d, want 3", n)
	}

	// 补报必须按采集顺序
	var drained []string
	err := b.Drain(func(payload []byte) error {
		drained = append(drained, string(payload))
		return nil
	})
	if err != nil {
		t.Fatalf("Drain() 失败: %v", err)
	}

	want := []string{"report-0", "report-1", "report-2"}
	if len(drained) != len(want) {
		t.Fatalf("补报了 %d 条，应该是 %d 条", len(drained), len(want))
	}
	for i := range want {
		if drained[i] != want[i] {
			t.Errorf("第 %d 条 = %s, want %s", i, drained[i], want[i])
		}
	}

	if n, _ := b.Len(); n != 0 {
		t.Errorf("补报完成后缓存应该为空，实际 %d 条", n)
	}
}

func TestBufferDrainStopsOnError(t *testing.T) {
	b := openTestBuffer(t)

	for i := 0; i < 3; i++ {
		if err := b.Append([]byte(fmt.Sprintf("report-%d", i))); err != nil {
			t.Fatalf("Append() 失败: %v", err)
		}
	}

	// 第二条失败，剩余样本必须保留
	sent := 0
	err := b.Drain(func(payload []byte) error {
		if sent == 1 {
			return fmt.Errorf("连接断开")
		}
		sent++
		return nil
	})
	if err == nil {
		t.Fatal("Drain() 应该返回发送失败的错误")
	}

	if n, _ := b.Len(); n != 2 {
		t.Errorf("失败后应该保留 2 条，实际 %d 条", n)
	}

	// 恢复后继续补报，依然按顺序
	var drained []string
	if err := b.Drain(func(payload []byte) error {
		drained = append(drained, string(payload))
		return nil
	}); err != nil {
		t.Fatalf("第二次 Drain() 失败: %v", err)
	}
	if len(drained) != 2 || drained[0] != "report-1" || drained[1] != "report-2" {
		t.Errorf("补报顺序不对: %v", drained)
	}
}

func TestBufferCap(t *testing.T) {
	b := openTestBuffer(t)

	for i := 0; i < maxBuffered+10; i++ {
		if err := b.Append([]byte(fmt.Sprintf("report-%d", i))); err != nil {
			t.Fatalf("Append() 失败: %v", err)
		}
	}

	n, err := b.Len()
	if err != nil {
		t.Fatalf("Len() 失败: %v", err)
	}
	if n > maxBuffered {
		t.Errorf("缓存超过上限: %d > %d", n, maxBuffered)
	}

	// 留下的应该是最新的样本
	var first string
	_ = b.Drain(func(payload []byte) error {
		if first == "" {
			first = string(payload)
		}
		return nil
	})
	if first == "report-0" {
		t.Error("超限后最老的样本应该被丢弃")
	}
}

func TestBufferReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buffer.db")

	b, err := Open(path)
	if err != nil {
		t.Fatalf("打开缓存失败: %v", err)
	}
	if err := b.Append([]byte("persisted")); err != nil {
		t.Fatalf("Append() 失败: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() 失败: %v", err)
	}

	// 重新打开后样本仍在
	b2, err := Open(path)
	if err != nil {
		t.Fatalf("重新打开缓存失败: %v", err)
	}
	defer b2.Close()

	if n, _ := b2.Len(); n != 1 {
		t.Errorf("重开后应该有 1 条，实际 %d 条", n)
	}
}
