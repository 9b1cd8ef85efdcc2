package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
)

// DATABASE_URLは到達不能なポートを指しているため、DB接続が必要なコマンドはエラーで終了する。

func TestRun_ServeCommand_FailsWithoutDatabase(t *testing.T) {
	setRequiredEnv(t)
	resetLogLevel(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run(serve) should fail when the database is unreachable")
	}
	if !strings.Contains(err.Error(), "database") {
		t.Errorf("error = %v, want database error", err)
	}
}

func TestRun_WorkerCommand_FailsWithoutDatabase(t *testing.T) {
	setRequiredEnv(t)
	resetLogLevel(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"worker"}); err == nil {
		t.Fatal("Run(worker) should fail when the database is unreachable")
	}
}

func TestRun_CreateAdmin_RequiresCredentials(t *testing.T) {
	setRequiredEnv(t)
	resetLogLevel(t)
	t.Setenv("ADMIN_EMAIL", "")
	t.Setenv("ADMIN_PASSWORD", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"create-admin"})
	if err == nil {
		t.Fatal("Run(create-admin) without credentials should return error")
	}
	if !strings.Contains(err.Error(), "ADMIN_EMAIL") || !strings.Contains(err.Error(), "ADMIN_PASSWORD") {
		t.Errorf("error = %v, want both variables listed", err)
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("BASE_URL", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

func TestRun_Healthcheck(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	t.Setenv("SERVER_PORT", u.Port())

	// healthcheckは設定の読み込みを行わないため必須の環境変数がなくても動作する
	t.Setenv("DATABASE_URL", "")
	if err := Run(nil, []string{"healthcheck"}); err != nil {
		t.Fatalf("Run(healthcheck) error = %v", err)
	}

	healthy.Store(false)
	if err := Run(nil, []string{"healthcheck"}); err == nil {
		t.Fatal("Run(healthcheck) should fail on 503")
	}
}
