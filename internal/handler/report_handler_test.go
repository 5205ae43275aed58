package handler

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RavenholmAlpha/Gridcore-agent/internal/models"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/service"
	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestHandler(t *testing.T) (*ReportHandler, *gorm.DB) {
	t.Helper()

	// 用临时文件库代替 :memory:，避免连接池里每个连接各自拿到一个空库
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&models.Node{}, &models.Metric{}); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}

	reportService := service.NewReportService(zap.NewNop(), db, nil)
	return NewReportHandler(zap.NewNop(), reportService), db
}

func doReport(t *testing.T, h *ReportHandler, body, authorization string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/report", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()

	if err := h.Report(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Report() 返回错误: %v", err)
	}
	return rec
}

func TestReportEndpoint(t *testing.T) {
	h, db := newTestHandler(t)

	now := time.Now().UnixMilli()
	node := &models.Node{
		UUID:      "node-1",
		Name:      "node-1",
		Secret:    "secret-1",
		Status:    models.StatusOffline,
		LastSeen:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(node).Error; err != nil {
		t.Fatalf("创建测试节点失败: %v", err)
	}

	t.Run("合法上报返回 200", func(t *testing.T) {
		rec := doReport(t, h, `{"uuid":"node-1","cpu":42.5}`, "Bearer secret-1")
		if rec.Code != http.StatusOK {
			t.Fatalf("状态码 = %d, want 200, body: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"message":"success"`) {
			t.Errorf("响应体缺少 success: %s", rec.Body.String())
		}

		var count int64
		db.Model(&models.Metric{}).Count(&count)
		if count != 1 {
			t.Errorf("应该写入 1 条指标，实际 %d 条", count)
		}
	})

	t.Run("缺少 UUID 返回 400", func(t *testing.T) {
		rec := doReport(t, h, `{"cpu":42.5}`, "Bearer secret-1")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("状态码 = %d, want 400", rec.Code)
		}
	})

	t.Run("请求体不是 JSON 返回 400", func(t *testing.T) {
		rec := doReport(t, h, `not-json`, "Bearer secret-1")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("状态码 = %d, want 400", rec.Code)
		}
	})

	t.Run("未注册的 UUID 返回 403", func(t *testing.T) {
		rec := doReport(t, h, `{"uuid":"ghost"}`, "Bearer secret-1")
		if rec.Code != http.StatusForbidden {
			t.Errorf("状态码 = %d, want 403", rec.Code)
		}
	})

	t.Run("密钥错误返回 401", func(t *testing.T) {
		rec := doReport(t, h, `{"uuid":"node-1"}`, "Bearer wrong")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("状态码 = %d, want 401", rec.Code)
		}
	})

	t.Run("缺少 Authorization 头返回 401", func(t *testing.T) {
		rec := doReport(t, h, `{"uuid":"node-1"}`, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("状态码 = %d, want 401", rec.Code)
		}
	})
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"Bearer ", ""},
		{"abc", ""},
		{"", ""},
		{"bearer abc", ""},
	}
	for _, c := range cases {
		if got := bearerToken(c.header); got != c.want {
			t.Errorf("bearerToken(%q) = %q, want %q", c.header, got, c.want)
		}
	}
}
