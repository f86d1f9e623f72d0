package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/bondedhq/link-server/internal/api/recovery"
	"github.com/bondedhq/link-server/internal/assistant"
	"github.com/bondedhq/link-server/internal/factcache"
	"github.com/bondedhq/link-server/internal/messaging"
	"github.com/bondedhq/link-server/internal/model"
	"github.com/bondedhq/link-server/internal/outreach"
	"github.com/bondedhq/link-server/internal/reply"
	"github.com/bondedhq/link-server/internal/store"
	"github.com/bondedhq/link-server/internal/store/sqlite"
)

type apiEnv struct {
	store  store.Store
	router *mux.Router
	uni    string
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "link.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	log := zerolog.Nop()
	msg := messaging.New(s, log)
	facts := factcache.New(s.Facts(), factcache.Config{
		WriteThreshold:      0.75,
		EventTTLDays:        7,
		EventUnknownTTLDays: 30,
		ProfileTTLDays:      180,
		OutreachTTLDays:     14,
		LookupLimit:         10,
	}, log)
	interp := reply.NewInterpreter(nil)
	mgr := outreach.NewManager(s, msg, interp, facts, outreach.Config{
		BatchSize: 5, BatchMax: 10, MaxExpansions: 2, HardCap: 10,
		ForumMinTargets: 10, RecontactCooldown: 7 * 24 * time.Hour, TargetThreshold: 0.75,
	}, log)
	coord := outreach.NewCoordinator(s, msg, facts, log)
	svc := assistant.New(s, msg, mgr, coord, facts, nil, interp, log)

	root := mux.NewRouter()
	root.Use(recovery.Middleware)

	messages := NewMessagesHandler(svc)
	root.HandleFunc("/v0/messages", messages.HandleMessage).Methods("POST")

	runs := NewOutreachHandler(mgr, coord, s.Runs())
	root.HandleFunc("/v0/outreach/{runId}", runs.GetRun).Methods("GET")
	root.HandleFunc("/v0/outreach/{runId}/collect", runs.Collect).Methods("POST")
	root.HandleFunc("/v0/outreach/{runId}/consent", runs.ResolveConsent).Methods("POST")
	root.HandleFunc("/v0/outreach/{runId}/cancel", runs.Cancel).Methods("POST")

	factsHandler := NewFactsHandler(facts)
	root.HandleFunc("/v0/facts", factsHandler.ListFacts).Methods("GET")

	health := NewHealthHandler()
	root.HandleFunc("/v0/health", health.CheckHealth).Methods("GET")

	return &apiEnv{store: s, router: root, uni: "uni-" + uuid.New().String()}
}

func (e *apiEnv) addProfile(t *testing.T, name string) string {
	t.Helper()
	id := "u-" + uuid.New().String()
	_, err := e.store.Profiles().Create(context.Background(), &model.Profile{
		UserID: id, UniversityID: e.uni, FullName: name, Username: name, Active: true,
	})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return id
}

func (e *apiEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestMessages_GreetingRoundTrip(t *testing.T) {
	env := newAPIEnv(t)
	user := env.addProfile(t, "riya")

	rec := env.do(t, "POST", "/v0/messages", map[string]string{"userId": user, "text": "hey"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp assistant.Response
	decodeJSON(t, rec, &resp)
	if resp.Mode != model.ModeConversation || resp.AnswerText == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestMessages_Validation(t *testing.T) {
	env := newAPIEnv(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v0/messages", bytes.NewBufferString("{not json"))
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed json status = %d", rec.Code)
	}

	if rec := env.do(t, "POST", "/v0/messages", map[string]string{"userId": "", "text": "hey"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty userId status = %d", rec.Code)
	}
	if rec := env.do(t, "POST", "/v0/messages", map[string]string{"userId": "u-" + uuid.New().String(), "text": "hey"}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestOutreach_RunLifecycleOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	user := env.addProfile(t, "riya")
	env.addProfile(t, "sam")
	env.addProfile(t, "casey")

	rec := env.do(t, "POST", "/v0/messages", map[string]string{"userId": user, "text": "anyone down to play chess this week?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body.String())
	}
	var started assistant.Response
	decodeJSON(t, rec, &started)
	if started.RunID == "" {
		t.Fatalf("no run started: %+v", started)
	}

	rec = env.do(t, "GET", "/v0/outreach/"+started.RunID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get run status = %d", rec.Code)
	}
	var run model.OutreachRun
	decodeJSON(t, rec, &run)
	if run.Status != model.RunCollecting {
		t.Fatalf("run status = %s, want collecting", run.Status)
	}

	// No candidate has been suggested yet, so consent resolution is invalid.
	rec = env.do(t, "POST", fmt.Sprintf("/v0/outreach/%s/consent", started.RunID), map[string]bool{"requesterOk": true, "targetOk": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("premature consent status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "POST", fmt.Sprintf("/v0/outreach/%s/collect", started.RunID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("collect status = %d, body %s", rec.Code, rec.Body.String())
	}
	var collected outreach.CollectResult
	decodeJSON(t, rec, &collected)
	if collected.Status == "" {
		t.Fatalf("collect result empty: %s", rec.Body.String())
	}

	rec = env.do(t, "POST", fmt.Sprintf("/v0/outreach/%s/cancel", started.RunID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestOutreach_RunIDValidation(t *testing.T) {
	env := newAPIEnv(t)

	if rec := env.do(t, "GET", "/v0/outreach/not-a-run-id", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed run id status = %d", rec.Code)
	}
	if rec := env.do(t, "GET", "/v0/outreach/"+uuid.New().String(), nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown run status = %d", rec.Code)
	}
}

func TestFacts_ListAndFilter(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()
	if _, err := env.store.Facts().Create(ctx, &model.VerifiedFact{
		UniversityID: env.uni, SubjectType: "campus", Category: "club",
		Key: "chess", Value: "chess club meets tuesdays in the union",
		Confidence: 0.8, Source: "db_record", ConsentStatus: "opt_in",
		VerifiedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	}); err != nil {
		t.Fatalf("seed fact: %v", err)
	}

	rec := env.do(t, "GET", "/v0/facts?universityId="+env.uni+"&tags=chess", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("facts status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Facts []model.VerifiedFact `json:"facts"`
		Count int                  `json:"count"`
	}
	decodeJSON(t, rec, &out)
	if out.Count != 1 || len(out.Facts) != 1 || out.Facts[0].Key != "chess" {
		t.Fatalf("unexpected facts: %s", rec.Body.String())
	}

	if rec := env.do(t, "GET", "/v0/facts", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing universityId status = %d", rec.Code)
	}
}

func TestHealth_AlwaysResponds(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, "GET", "/v0/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	var out map[string]interface{}
	decodeJSON(t, rec, &out)
	if _, ok := out["status"]; !ok {
		t.Fatalf("health body missing status: %s", rec.Body.String())
	}
}
