package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fieldlog/internal/auth"
	equipment "fieldlog/internal/equipment/domain"
	"fieldlog/internal/readings/application"
	readings "fieldlog/internal/readings/domain"
	"fieldlog/internal/retry"
	"fieldlog/internal/syncer"
	"fieldlog/internal/syncqueue/infrastructure/memory"
	validation "fieldlog/internal/validation/domain"
)

func testIntake(t *testing.T) (*application.IntakeService, *memory.Store) {
	t.Helper()

	min, max := 0.0, 2000.0
	fields := []validation.FieldSpec{
		{Key: "combustion_temp_c", Label: "Combustion Temperature", Type: validation.FieldTypeNumber, Required: true, Min: &min, Max: &max},
	}
	provider := equipment.StaticProvider{
		"plant-a": {ProjectID: "plant-a", MinOperatingTempC: 760, MaxOperatingTempC: 980, H2SCeilingPPM: 100, H2SAdvisoryPPM: 50, LELCeilingPct: 25, LELTargetPct: 10, MinEfficiency: 0.98},
	}

	queue := memory.NewStore()
	intake, err := application.NewIntakeService(queue, validation.NewEngine(nil, nil), fields, provider, nil, nil)
	if err != nil {
		t.Fatalf("new intake: %v", err)
	}
	return intake, queue
}

func postReading(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/readings", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestReadingsHandlerAccepts(t *testing.T) {
	intake, queue := testIntake(t)
	handler := NewReadingsHandler(intake)

	rec := postReading(t, handler, `{
		"project_id": "plant-a",
		"date_id": "20260815",
		"hour": 7,
		"fields": {"combustion_temp_c": {"number": 870}},
		"edited_fields": ["combustion_temp_c"]
	}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp readingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Key != "plant-a_20260815_07" || !resp.Queued {
		t.Fatalf("unexpected response %+v", resp)
	}

	pending, _ := queue.HasPending(context.Background())
	if !pending {
		t.Fatal("entry not queued")
	}
}

func TestReadingsHandlerValidationFailure(t *testing.T) {
	intake, queue := testIntake(t)
	handler := NewReadingsHandler(intake)

	rec := postReading(t, handler, `{
		"project_id": "plant-a",
		"date_id": "20260815",
		"hour": 7,
		"fields": {}
	}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}

	var resp readingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Errors["combustion_temp_c"] == "" {
		t.Fatalf("expected a field error, got %+v", resp)
	}

	pending, _ := queue.HasPending(context.Background())
	if pending {
		t.Fatal("invalid reading must not be queued")
	}
}

func TestReadingsHandlerBadIdentity(t *testing.T) {
	intake, _ := testIntake(t)
	handler := NewReadingsHandler(intake)

	rec := postReading(t, handler, `{
		"project_id": "plant-a",
		"date_id": "2026-08-15",
		"hour": 7,
		"fields": {"combustion_temp_c": {"number": 870}}
	}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPendingHandlerListAndDiscard(t *testing.T) {
	intake, _ := testIntake(t)
	readingsHandler := NewReadingsHandler(intake)
	pendingHandler := NewPendingHandler(intake)

	rec := postReading(t, readingsHandler, `{
		"project_id": "plant-a",
		"date_id": "20260815",
		"hour": 7,
		"fields": {"combustion_temp_c": {"number": 870}},
		"edited_fields": ["combustion_temp_c"]
	}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("seed: %d", rec.Code)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/v1/readings/pending", nil)
	listRec := httptest.NewRecorder()
	pendingHandler.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list: %d", listRec.Code)
	}
	var entries []readings.PendingEntry
	if err := json.Unmarshal(listRec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/api/v1/readings/pending/plant-a_20260815_07", nil)
	delRec := httptest.NewRecorder()
	pendingHandler.ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("discard: %d", delRec.Code)
	}

	againRec := httptest.NewRecorder()
	pendingHandler.ServeHTTP(againRec, httptest.NewRequest(http.MethodDelete, "/api/v1/readings/pending/plant-a_20260815_07", nil))
	if againRec.Code != http.StatusNotFound {
		t.Fatalf("second discard: %d", againRec.Code)
	}
}

type acceptAllRemote struct{}

func (acceptAllRemote) Fetch(context.Context, readings.Identity) (*readings.Reading, error) {
	return nil, syncer.ErrNotFound
}

func (acceptAllRemote) Put(_ context.Context, _ readings.Reading, baseVersion int64) (int64, error) {
	return baseVersion + 1, nil
}

func TestSyncHandlerDrainsQueue(t *testing.T) {
	intake, queue := testIntake(t)
	readingsHandler := NewReadingsHandler(intake)

	rec := postReading(t, readingsHandler, `{
		"project_id": "plant-a",
		"date_id": "20260815",
		"hour": 7,
		"fields": {"combustion_temp_c": {"number": 870}},
		"edited_fields": ["combustion_temp_c"]
	}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("seed: %d", rec.Code)
	}

	exec := retry.NewExecutor(retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	sync := syncer.NewSynchronizer(queue, acceptAllRemote{}, exec, syncer.NewResolver(nil), nil)
	intake.AttachDrainer(sync)
	handler := NewSyncHandler(intake)

	syncRec := httptest.NewRecorder()
	handler.ServeHTTP(syncRec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
	if syncRec.Code != http.StatusOK {
		t.Fatalf("sync: %d", syncRec.Code)
	}

	var views []syncOutcomeView
	if err := json.Unmarshal(syncRec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 || views[0].Status != string(syncer.StatusConfirmed) {
		t.Fatalf("unexpected outcomes %+v", views)
	}

	pending, _ := queue.HasPending(context.Background())
	if pending {
		t.Fatal("queue must be drained")
	}
}

func TestOperatorMiddleware(t *testing.T) {
	secret := []byte("station-secret")
	var seenOperator string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := auth.OperatorFrom(r.Context()); ok {
			seenOperator = claims.OperatorID
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := OperatorMiddleware(secret, nil, inner)

	// Anonymous requests pass through without claims.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || seenOperator != "" {
		t.Fatalf("anonymous: %d %q", rec.Code, seenOperator)
	}

	// A valid token resolves the operator.
	token, err := auth.IssueOperatorToken("op-17", "", secret, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seenOperator != "op-17" {
		t.Fatalf("authenticated: %d %q", rec.Code, seenOperator)
	}

	// A garbage token is rejected.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: %d", rec.Code)
	}
}
