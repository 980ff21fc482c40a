package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/matheus3301/opsms/internal/api"
	"github.com/matheus3301/opsms/internal/config"
	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/profile"
	"github.com/matheus3301/opsms/internal/querycache"
	"github.com/matheus3301/opsms/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/messages":
			var p openphone.SendMessageParams
			_ = json.NewDecoder(r.Body).Decode(&p)
			_ = json.NewEncoder(w).Encode(openphone.SendMessageResponse{Data: openphone.Message{
				ID: "srv-1", Text: p.Content, From: p.From, To: p.To, Status: openphone.StatusDelivered,
			}})
		case r.URL.Path == "/v1/messages":
			_, _ = io.WriteString(w, `{"data":[{"id":"srv-1","text":"hi","status":"delivered","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"}],"totalItems":1,"nextPageToken":null}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testParams(t *testing.T, baseURL string) Params {
	t.Helper()
	t.Setenv(profile.HomeEnv, t.TempDir())
	t.Setenv("OPSMS_BASE_URL", baseURL)
	cfg, err := config.Resolve(profile.ConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	return Params{Profile: "test", Config: cfg, Exclusive: true}
}

func TestModuleSendAndPersist(t *testing.T) {
	p := testParams(t, fakeBackend(t).URL)
	key := querycache.Key{PhoneNumberID: "PN1", Participant: "+1B"}

	var svc *api.Service
	app := fxtest.New(t, Module(p), fx.Populate(&svc))
	app.RequireStart()

	if _, err := svc.Send(key).Mutate(context.Background(), "hi"); err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	history, err := svc.History(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Status != store.SendReconciled {
		t.Errorf("history = %+v", history)
	}
	app.RequireStop()

	db, err := store.Open(profile.DBPath(p.Profile))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	snaps, err := db.LoadSnapshots()
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 || snaps[0].Key != key.String() {
		t.Errorf("snapshots = %+v", snaps)
	}
}

func TestModuleHydratesOnStart(t *testing.T) {
	p := testParams(t, fakeBackend(t).URL)
	key := querycache.Key{PhoneNumberID: "PN1", Participant: "+1B"}

	if err := profile.EnsureDir(p.Profile); err != nil {
		t.Fatal(err)
	}
	db, err := store.Open(profile.DBPath(p.Profile))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	data := []byte(`{"pages":[{"items":[{"id":"temp-1-x","text":"pending"},{"id":"cached","text":"old"}],"totalItems":2}],"pageParams":[""]}`)
	if err := db.SaveSnapshot(&store.Snapshot{Key: key.String(), PhoneNumberID: "PN1", Participant: "+1B", Data: data}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordSend("temp-1-x", "PN1", "+1B", "pending"); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	var svc *api.Service
	app := fxtest.New(t, Module(p), fx.Populate(&svc))
	app.RequireStart()
	defer app.RequireStop()

	q := svc.Messages(key)
	if msgs := q.Messages(); len(msgs) != 1 || msgs[0].ID != "cached" {
		t.Errorf("hydrated messages = %+v", msgs)
	}
	history, err := svc.History(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Status != store.SendAbandoned {
		t.Errorf("history = %+v", history)
	}

	if err := q.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if msgs := q.Messages(); len(msgs) != 1 || msgs[0].ID != "srv-1" {
		t.Errorf("stale entry was not refetched: %+v", msgs)
	}
}

func TestModuleExclusiveLock(t *testing.T) {
	p := testParams(t, fakeBackend(t).URL)

	first := fxtest.New(t, Module(p))
	first.RequireStart()
	defer first.RequireStop()

	second := fx.New(Module(p), fx.NopLogger)
	err := second.Err()
	if err == nil || !strings.Contains(err.Error(), "profile is in use") {
		t.Errorf("second instance error = %v, want lock held", err)
	}
}
