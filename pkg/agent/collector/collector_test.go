package collector

import (
	"sync"
	"testing"
)

func TestSetPublicIPConcurrent(t *testing.T) {
	c := New()

	// 公网 IP 探测和周期采集跑在不同任务里，并发读写不应该出问题
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			c.SetPublicIP("203.0.113.7")
		}
	}()
	for i := 0; i < 10; i++ {
		if _, err := c.Collect(); err != nil {
			t.Fatalf("Collect() 失败: %v", err)
		}
	}
	wg.Wait()

	data, err := c.Collect()
	if err != nil {
		t.Fatalf("Collect() 失败: %v", err)
	}
	if data.PublicIP != "203.0.113.7" {
		t.Errorf("采集结果应该携带公网 IP，实际 %q", data.PublicIP)
	}
}
