package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ucontrol/internal/log"
	"ucontrol/internal/period"
	"ucontrol/internal/services"
	"ucontrol/internal/storage/memory"
)

type testEnv struct {
	srv      *Server
	store    *memory.Store
	settings *period.Settings
}

func newTestEnv(t *testing.T, cfg Config, ready ...Pinger) *testEnv {
	t.Helper()
	store := memory.New()
	settings, err := period.NewSettings(period.CutoffConfig{CutoffDay: 23, IsActive: true})
	if err != nil {
		t.Fatal(err)
	}
	logger := log.Discard()
	summary := services.NewSummaryService(store, settings, time.Minute, logger)
	svc := Services{
		Ledger:  services.NewLedgerService(store, settings, logger, services.WithInvalidator(summary)),
		Budgets: services.NewBudgetService(store, summary, logger),
		Summary: summary,
		Cutoff:  services.NewCutoffService(store, settings, summary, logger),
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = 1000
	}
	srv := NewServer(cfg, svc, logger, append([]Pinger{store}, ready...)...)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store, settings: settings}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorBody](t, rec).Error
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, Config{})
	for _, path := range []string{"/healthz", "/readyz"} {
		if rec := env.do(t, http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rec.Code)
		}
	}

	down := newTestEnv(t, Config{}, failingPinger{})
	if rec := down.do(t, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing dependency status=%d", rec.Code)
	}
}

func TestResponsesCarryHeaders(t *testing.T) {
	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodGet, "/healthz", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Errorf("content type = %q", rec.Header().Get("Content-Type"))
	}
}

func TestGetCutoffConfig(t *testing.T) {
	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodGet, "/cutoff-config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	view := decode[services.CutoffView](t, rec)
	if view.Config.CutoffDay != 23 || view.CurrentPeriod.PeriodKey == "" {
		t.Fatalf("view = %+v", view)
	}
}

func TestUpdateCutoffConfig(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
		wantDay int
	}{
		{"zero is out of range", `{"cutoffDay":0}`, http.StatusBadRequest, MsgInvalidCutoffDay, 23},
		{"32 is out of range", `{"cutoffDay":32}`, http.StatusBadRequest, MsgInvalidCutoffDay, 23},
		{"valid day", `{"cutoffDay":15}`, http.StatusOK, "", 15},
		{"only isActive", `{"isActive":false}`, http.StatusOK, "", 23},
		{"malformed body", `{"cutoffDay":`, http.StatusBadRequest, "", 23},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Config{})
			rec := env.do(t, http.MethodPut, "/cutoff-config", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
			}
			if tt.message != "" {
				if got := errorMessage(t, rec); got != tt.message {
					t.Fatalf("message = %q, want %q", got, tt.message)
				}
			}
			if got := env.settings.Current().CutoffDay; got != tt.wantDay {
				t.Fatalf("cutoff day = %d, want %d", got, tt.wantDay)
			}
			if rec.Code == http.StatusOK {
				view := decode[services.CutoffView](t, rec)
				if view.Config.CutoffDay != tt.wantDay {
					t.Fatalf("response cutoff day = %d", view.Config.CutoffDay)
				}
			}
		})
	}
}

func TestCutoffActions(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodPost, "/cutoff-config", `{"action":"getPeriods","startDate":"2024-01-10","endDate":"2024-03-10"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("getPeriods status=%d body=%s", rec.Code, rec.Body.String())
	}
	got := decode[struct {
		Periods []period.FinancialPeriod `json:"periods"`
	}](t, rec)
	var keys []string
	for _, p := range got.Periods {
		keys = append(keys, p.PeriodKey)
	}
	if strings.Join(keys, ",") != "2024-01,2024-02,2024-03" {
		t.Fatalf("periods = %v", keys)
	}

	rec = env.do(t, http.MethodPost, "/cutoff-config", `{"action":"getPeriods","startDate":"2024-03-10","endDate":"2024-01-10"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"periods":[]`) {
		t.Fatalf("reversed range: status=%d body=%s", rec.Code, rec.Body.String())
	}

	checks := []struct {
		body string
		want bool
	}{
		{`{"action":"checkDate","date":"2024-01-23","periodMonth":"2024-01"}`, false},
		{`{"action":"checkDate","date":"2024-01-23","periodMonth":"2024-02"}`, true},
		{`{"action":"checkDate","date":"2024-01-22","periodMonth":"2024-01"}`, true},
	}
	for _, c := range checks {
		rec := env.do(t, http.MethodPost, "/cutoff-config", c.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status=%d", c.body, rec.Code)
		}
		if got := decode[map[string]bool](t, rec)["isInPeriod"]; got != c.want {
			t.Fatalf("%s: isInPeriod=%v, want %v", c.body, got, c.want)
		}
	}
}

func TestCutoffActionErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"getPeriods without endDate", `{"action":"getPeriods","startDate":"2024-01-01"}`, "Faltan campos requeridos: endDate"},
		{"getPeriods without dates", `{"action":"getPeriods"}`, "Faltan campos requeridos: startDate, endDate"},
		{"checkDate without fields", `{"action":"checkDate"}`, "Faltan campos requeridos: date, periodMonth"},
		{"missing action", `{}`, "Faltan campos requeridos: action"},
		{"unknown action", `{"action":"explode"}`, ""},
		{"bad date", `{"action":"checkDate","date":"23/01/2024","periodMonth":"2024-01"}`, ""},
		{"bad period key", `{"action":"checkDate","date":"2024-01-23","periodMonth":"2024-13"}`, ""},
	}

	env := newTestEnv(t, Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/cutoff-config", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
			}
			msg := errorMessage(t, rec)
			if tt.message != "" && msg != tt.message {
				t.Fatalf("message = %q, want %q", msg, tt.message)
			}
			if msg == "" {
				t.Fatal("empty error message")
			}
		})
	}
}

func createAccount(t *testing.T, env *testEnv) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/accounts", `{"name":"Nómina","type":"checking","currency":"mxn"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account status=%d body=%s", rec.Code, rec.Body.String())
	}
	acc := decode[map[string]any](t, rec)
	if acc["currency"] != "MXN" || acc["isActive"] != true {
		t.Fatalf("account = %v", acc)
	}
	return acc["id"].(string)
}

func TestAccountsCRUD(t *testing.T) {
	env := newTestEnv(t, Config{})
	id := createAccount(t, env)

	if rec := env.do(t, http.MethodGet, "/accounts/"+id, ""); rec.Code != http.StatusOK {
		t.Fatalf("get status=%d", rec.Code)
	}
	rec := env.do(t, http.MethodPut, "/accounts/"+id, `{"name":"Ahorro","type":"savings","currency":"MXN","isActive":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rec.Code, rec.Body.String())
	}
	if acc := decode[map[string]any](t, rec); acc["name"] != "Ahorro" || acc["isActive"] != false {
		t.Fatalf("updated = %v", acc)
	}

	rec = env.do(t, http.MethodGet, "/accounts", "")
	if got := decode[map[string][]any](t, rec)["accounts"]; len(got) != 1 {
		t.Fatalf("accounts = %v", got)
	}

	rec = env.do(t, http.MethodPost, "/accounts", `{"name":"Tarjeta","type":"credit","currency":"MXN","initialBalance":"-50,00"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("negative balance status=%d body=%s", rec.Code, rec.Body.String())
	}
	credit := decode[map[string]any](t, rec)
	if credit["initialBalance"] != float64(-5000) {
		t.Fatalf("initialBalance = %v", credit["initialBalance"])
	}
	creditID, _ := credit["id"].(string)
	if rec := env.do(t, http.MethodDelete, "/accounts/"+creditID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete credit account status=%d", rec.Code)
	}

	if rec := env.do(t, http.MethodPost, "/accounts", `{"name":"X","type":"crypto","currency":"MXN"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid type status=%d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/accounts/"+id, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/accounts/"+id, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d", rec.Code)
	}
}

func TestExpenseLifecycleUpdatesSummary(t *testing.T) {
	env := newTestEnv(t, Config{})
	acc := createAccount(t, env)

	rec := env.do(t, http.MethodPost, "/expenses",
		`{"accountId":"`+acc+`","date":"2024-01-25","description":"Súper","amount":125050,"category":"Comida"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create expense status=%d body=%s", rec.Code, rec.Body.String())
	}
	expenseID := decode[map[string]any](t, rec)["id"].(string)

	rec = env.do(t, http.MethodPost, "/incomes",
		`{"accountId":"`+acc+`","date":"2024-02-01","description":"Salario","amount":"2500.00","category":"Sueldo"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create income status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/expenses?period=2024-02", "")
	if got := decode[map[string][]map[string]any](t, rec)["expenses"]; len(got) != 1 || got[0]["id"] != expenseID {
		t.Fatalf("expenses in 2024-02 = %v", got)
	}
	rec = env.do(t, http.MethodGet, "/expenses?period=2024-01", "")
	if got := decode[map[string][]any](t, rec)["expenses"]; len(got) != 0 {
		t.Fatalf("expenses in 2024-01 = %v", got)
	}
	rec = env.do(t, http.MethodGet, "/incomes?startDate=2024-02-01&endDate=2024-02-01&accountId="+acc, "")
	if got := decode[map[string][]any](t, rec)["incomes"]; len(got) != 1 {
		t.Fatalf("incomes by range = %v", got)
	}

	rec = env.do(t, http.MethodGet, "/summary?period=2024-02", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status=%d", rec.Code)
	}
	sum := decode[services.PeriodSummary](t, rec)
	if sum.TotalExpense.Cents != 125050 || sum.TotalIncome.Cents != 250000 || sum.Net.Cents != 124950 {
		t.Fatalf("summary = %+v", sum)
	}

	if rec := env.do(t, http.MethodDelete, "/expenses/"+expenseID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/expenses/"+expenseID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d", rec.Code)
	}
	sum = decode[services.PeriodSummary](t, env.do(t, http.MethodGet, "/summary?period=2024-02", ""))
	if sum.TotalExpense.Cents != 0 {
		t.Fatalf("summary not invalidated: %+v", sum)
	}
}

func TestLedgerErrors(t *testing.T) {
	env := newTestEnv(t, Config{})
	acc := createAccount(t, env)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown account", http.MethodPost, "/expenses", `{"accountId":"nope","date":"2024-01-25","description":"x","amount":100,"category":"c"}`, http.StatusUnprocessableEntity},
		{"zero amount", http.MethodPost, "/expenses", `{"accountId":"` + acc + `","date":"2024-01-25","description":"x","amount":0,"category":"c"}`, http.StatusUnprocessableEntity},
		{"negative amount string", http.MethodPost, "/expenses", `{"accountId":"` + acc + `","date":"2024-01-25","description":"x","amount":"-5,00","category":"c"}`, http.StatusUnprocessableEntity},
		{"bad amount string", http.MethodPost, "/incomes", `{"accountId":"` + acc + `","date":"2024-01-25","description":"x","amount":"abc","category":"c"}`, http.StatusUnprocessableEntity},
		{"invalid json", http.MethodPost, "/incomes", `{"accountId":`, http.StatusBadRequest},
		{"bad period", http.MethodGet, "/expenses?period=2024-13", "", http.StatusBadRequest},
		{"reversed range", http.MethodGet, "/incomes?startDate=2024-03-01&endDate=2024-02-01", "", http.StatusBadRequest},
		{"period and range", http.MethodGet, "/incomes?period=2024-02&startDate=2024-02-01", "", http.StatusBadRequest},
		{"missing income", http.MethodDelete, "/incomes/ghost", "", http.StatusNotFound},
		{"bad summary period", http.MethodGet, "/summary?period=feb", "", http.StatusBadRequest},
		{"wrong method", http.MethodPatch, "/expenses", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status=%d, want %d body=%s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}

	rec := env.do(t, http.MethodPost, "/expenses", `{"accountId":"`+acc+`","date":"2024-01-25","description":"x","amount":100,"category":"c"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed expense status=%d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/accounts/"+acc, ""); rec.Code != http.StatusConflict {
		t.Fatalf("delete referenced account status=%d", rec.Code)
	}
}

func TestBudgetsCRUD(t *testing.T) {
	env := newTestEnv(t, Config{})
	body := `{"category":"Comida","periodKey":"2024-02","limit":500000}`

	rec := env.do(t, http.MethodPost, "/budgets", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}
	id := decode[map[string]any](t, rec)["id"].(string)

	if rec := env.do(t, http.MethodPost, "/budgets", body); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status=%d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/budgets", `{"category":"Comida","periodKey":"02-2024","limit":1}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad period key status=%d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/budgets/"+id, `{"category":"Comida","periodKey":"2024-02","limit":600000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/budgets?period=2024-02", "")
	budgets := decode[map[string][]map[string]any](t, rec)["budgets"]
	if len(budgets) != 1 || budgets[0]["limit"] != float64(600000) {
		t.Fatalf("budgets = %v", budgets)
	}

	if rec := env.do(t, http.MethodGet, "/budgets?period=bad", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad list period status=%d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/budgets/"+id, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/budgets/"+id, body); rec.Code != http.StatusNotFound {
		t.Fatalf("update deleted status=%d", rec.Code)
	}
}

func TestRateLimitOnlyMutatingRequests(t *testing.T) {
	env := newTestEnv(t, Config{RequestsPerMinute: 1})

	if rec := env.do(t, http.MethodPost, "/budgets", `{"category":"A","periodKey":"2024-02","limit":1}`); rec.Code != http.StatusCreated {
		t.Fatalf("first post status=%d", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/budgets", `{"category":"B","periodKey":"2024-02","limit":1}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second post status=%d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || errorMessage(t, rec) == "" {
		t.Fatal("rate limited response lacks Retry-After or message")
	}
	for i := 0; i < 3; i++ {
		if rec := env.do(t, http.MethodGet, "/budgets", ""); rec.Code != http.StatusOK {
			t.Fatalf("get %d status=%d", i, rec.Code)
		}
	}
}

func TestRateLimitKeysOnForwardedClient(t *testing.T) {
	// httptest requests come from 192.0.2.1.
	env := newTestEnv(t, Config{RequestsPerMinute: 1, TrustedProxies: []string{"192.0.2.0/24"}})

	post := func(client, category string) int {
		req := httptest.NewRequest(http.MethodPost, "/budgets", strings.NewReader(`{"category":"`+category+`","periodKey":"2024-02","limit":1}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", client)
		rec := httptest.NewRecorder()
		env.srv.Handler.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := post("203.0.113.5", "A"); code != http.StatusCreated {
		t.Fatalf("first client status=%d", code)
	}
	if code := post("203.0.113.6", "B"); code != http.StatusCreated {
		t.Fatalf("second client behind the proxy was limited: status=%d", code)
	}
	if code := post("203.0.113.5", "C"); code != http.StatusTooManyRequests {
		t.Fatalf("repeat client status=%d", code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{period.ErrInvalidCutoffDay, http.StatusBadRequest},
		{services.ErrInvalidRange, http.StatusBadRequest},
		{badRequest("x"), http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
