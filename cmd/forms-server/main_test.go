package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/chw/forms/internal/config"
	"github.com/chw/forms/internal/platform/auth"
	"github.com/chw/forms/internal/platform/db"
	"github.com/chw/forms/internal/platform/middleware"
	"github.com/chw/forms/internal/platform/telemetry"
)

const followUpYAML = `
classification:
  name: Follow-up
languages: [English, French]
questions:
  - questionIndex: 0
    questionType: MULTIPLE_CHOICE
    required: true
    questionLangVersions:
      - lang: English
        questionText: Fever?
        mcOptions: [{mcid: 0, opt: "Yes"}, {mcid: 1, opt: "No"}]
      - lang: French
        questionText: Fièvre ?
        mcOptions: [{mcid: 0, opt: "Oui"}, {mcid: 1, opt: "Non"}]
  - questionIndex: 1
    questionType: STRING
    required: false
    questionLangVersions:
      - lang: English
        questionText: Notes
      - lang: French
        questionText: Remarques
`

// French text is missing on question 1.
const brokenJSON = `{
  "classification": {"name": "Broken"},
  "languages": ["English", "French"],
  "questions": [
    {"questionIndex": 0, "questionType": "STRING", "required": false,
     "questionLangVersions": [
       {"lang": "English", "questionText": "Notes"},
       {"lang": "French", "questionText": "Remarques"}]},
    {"questionIndex": 1, "questionType": "STRING", "required": false,
     "questionLangVersions": [{"lang": "English", "questionText": "Other"}]}
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// -- Command Tree --

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	want := map[string][]string{
		"serve":    nil,
		"migrate":  {"up", "status"},
		"template": {"validate", "preview"},
		"token":    nil,
	}
	for name, subs := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("expected %q command, got %v (err %v)", name, cmd, err)
			continue
		}
		for _, sub := range subs {
			if c, _, err := root.Find([]string{name, sub}); err != nil || c.Name() != sub {
				t.Errorf("expected %q %q subcommand", name, sub)
			}
		}
	}
}

func TestTokenCmd_Defaults(t *testing.T) {
	cmd := tokenCmd()
	roles, err := cmd.Flags().GetStringSlice("role")
	if err != nil || len(roles) != 1 || roles[0] != auth.RoleHCW {
		t.Errorf("expected default role hcw, got %v", roles)
	}
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if ttl != 12*time.Hour {
		t.Errorf("expected 12h ttl, got %s", ttl)
	}
}

// -- Template Commands --

func TestValidateTemplate_OK(t *testing.T) {
	path := writeFile(t, "follow-up.yaml", followUpYAML)
	var out bytes.Buffer
	if err := validateTemplate(&out, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "ok (Follow-up, 2 questions, languages: English, French)") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestValidateTemplate_ReportsProblems(t *testing.T) {
	path := writeFile(t, "broken.json", brokenJSON)
	var out bytes.Buffer
	err := validateTemplate(&out, path)
	if err == nil {
		t.Fatal("expected error for invalid template")
	}
	if !strings.Contains(err.Error(), "1 problem(s)") {
		t.Errorf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "[French]: question 1: question text is missing in French") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestValidateTemplate_MissingFile(t *testing.T) {
	if err := validateTemplate(&bytes.Buffer{}, filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPreviewCmd_Language(t *testing.T) {
	path := writeFile(t, "follow-up.yaml", followUpYAML)
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"template", "preview", path, "--lang", "french"})
	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()
	for _, want := range []string{"Follow-up (French)", "1. Fièvre ? *", "( ) Oui", "2. Remarques"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in preview:\n%s", want, got)
		}
	}
}

func TestPreviewTemplate_DefaultsToFirstLanguage(t *testing.T) {
	path := writeFile(t, "follow-up.yaml", followUpYAML)
	var out bytes.Buffer
	if err := previewTemplate(&out, path, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Follow-up (English)") {
		t.Errorf("unexpected preview: %q", out.String())
	}
}

func TestPrintStatus(t *testing.T) {
	at := time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)
	var out bytes.Buffer
	printStatus(&out, []db.MigrationStatus{
		{Version: 1, Name: "forms", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "indexes"},
	})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, rule and 2 rows, got %d lines", len(lines))
	}
	if !strings.Contains(lines[2], "applied") || !strings.Contains(lines[2], "2024-06-15 09:30:00") {
		t.Errorf("unexpected applied row: %q", lines[2])
	}
	if !strings.Contains(lines[3], "pending") {
		t.Errorf("unexpected pending row: %q", lines[3])
	}
}

// -- Server Assembly --

type pingRoutes struct{}

func (pingRoutes) RegisterRoutes(api *echo.Group) {
	api.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, auth.UserIDFromContext(c.Request().Context()))
	})
}

func testConfig(env string) *config.Config {
	return &config.Config{
		Env:             env,
		DefaultLanguage: "English",
		CORSOrigins:     []string{"http://localhost:3000"},
		AuthSigningKey:  strings.Repeat("k", 32),
		AuthIssuer:      "chw-forms",
		BodyLimit:       "1M",
		RateLimitRPS:    100,
		RateLimitBurst:  100,
		RequestTimeout:  5 * time.Second,
	}
}

func okHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func testDeps() serverDeps {
	return serverDeps{
		health:  okHealth,
		metrics: telemetry.NewProvider("forms-test"),
		routes:  []routes{pingRoutes{}},
	}
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestNewEcho_HealthIsPublic(t *testing.T) {
	e := newEcho(testConfig("production"), zerolog.Nop(), testDeps())

	for _, path := range []string{"/health", "/health/db"} {
		rec := serve(e, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestNewEcho_RequiresToken(t *testing.T) {
	cfg := testConfig("production")
	e := newEcho(cfg, zerolog.Nop(), testDeps())

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token, err := auth.IssueToken(jwtConfig(cfg), "worker-1", []string{auth.RoleHCW}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = serve(e, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "worker-1" {
		t.Errorf("expected 200 worker-1, got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected request id header")
	}
}

func TestNewEcho_DevAuth(t *testing.T) {
	e := newEcho(testConfig("development"), zerolog.Nop(), testDeps())

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "dev-user" {
		t.Errorf("expected dev-user, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestNewEcho_RateLimit(t *testing.T) {
	cfg := testConfig("development")
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 1
	e := newEcho(cfg, zerolog.Nop(), testDeps())

	if rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	// health is outside the limited group
	if rec := serve(e, httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusOK {
		t.Errorf("expected health to pass, got %d", rec.Code)
	}
}

func TestNewEcho_MetricsAdminOnly(t *testing.T) {
	cfg := testConfig("production")
	e := newEcho(cfg, zerolog.Nop(), testDeps())

	token, err := auth.IssueToken(jwtConfig(cfg), "worker-1", []string{auth.RoleHCW}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if rec := serve(e, req); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for hcw, got %d", rec.Code)
	}

	admin, _ := auth.IssueToken(jwtConfig(cfg), "admin-1", []string{auth.RoleAdmin}, time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	rec := serve(e, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "http_server_request_duration_seconds") {
		t.Errorf("expected exposition, got %d %q", rec.Code, rec.Body.String())
	}
}
