package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/rpcgate/adapters/clock"
	"github.com/artpar/rpcgate/adapters/idgen"
	"github.com/artpar/rpcgate/adapters/validator"
	"github.com/artpar/rpcgate/core/call"
	"github.com/artpar/rpcgate/core/procedure"
	"github.com/artpar/rpcgate/core/router"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testHandler(t *testing.T) *Handler {
	t.Helper()

	reg := procedure.NewRegistry("users_unit")
	reg.MustRegister(procedure.NewQuery("get").
		Input(validator.NewMapSchema(map[string]validator.Field{}, validator.Lenient())).
		Handler(func(_ context.Context, c call.Context, input any) (any, error) {
			m := input.(map[string]any)
			return map[string]any{
				"id":        m["id"],
				"transport": string(c.Transport),
			}, nil
		}).Build())

	table, err := router.New(router.WithLogger(testLogger())).
		Mount(reg, "users").
		Alias("getUser", "users.get").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	return NewHandler(table, testLogger(), idgen.NewSequential("req-"),
		clock.NewFake(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)))
}

func doRequest(t *testing.T, h *Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHandleCall(t *testing.T) {
	h := testHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/rpc/users.get", `{"id":"42"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var env struct {
		OK   bool           `json:"ok"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if !env.OK || env.Data["id"] != "42" {
		t.Errorf("envelope = %+v", env)
	}
	if env.Data["transport"] != "http" {
		t.Errorf("transport = %v, want http tagged on the context", env.Data["transport"])
	}
}

func TestHandleCall_AliasPath(t *testing.T) {
	h := testHandler(t)
	rec := doRequest(t, h, http.MethodPost, "/rpc/getUser", `{"id":"1"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleCall_StatusMapping(t *testing.T) {
	h := testHandler(t)

	tests := []struct {
		path string
		body string
		want int
	}{
		{"/rpc/users.missing", "{}", http.StatusNotFound},
		{"/rpc/Bad..Path", "{}", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := doRequest(t, h, http.MethodPost, tt.path, tt.body)
		if rec.Code != tt.want {
			t.Errorf("POST %s status = %d, want %d", tt.path, rec.Code, tt.want)
		}
		var env struct {
			OK    bool `json:"ok"`
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatal(err)
		}
		if env.OK || env.Error.Code == "" {
			t.Errorf("POST %s envelope = %s", tt.path, rec.Body.String())
		}
	}
}

func TestHandleCall_BadBody(t *testing.T) {
	h := testHandler(t)
	rec := doRequest(t, h, http.MethodPost, "/rpc/users.get", "{not json")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleBatch(t *testing.T) {
	h := testHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/rpc",
		`[{"path":"users.get","input":{"id":"1"}},{"path":"nope.nope"}]`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var envs []struct {
		OK    bool `json:"ok"`
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envs); err != nil {
		t.Fatal(err)
	}
	if len(envs) != 2 {
		t.Fatalf("results = %d", len(envs))
	}
	if !envs[0].OK {
		t.Errorf("first result = %+v", envs[0])
	}
	if envs[1].OK || envs[1].Error.Code != "not_found" {
		t.Errorf("second result = %+v", envs[1])
	}
}

func TestHandleList(t *testing.T) {
	h := testHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/rpc", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var listing struct {
		Router     string `json:"router"`
		Procedures []struct {
			Path string `json:"path"`
			Kind string `json:"kind"`
		} `json:"procedures"`
		Aliases []struct {
			From string `json:"from"`
		} `json:"aliases"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatal(err)
	}
	if len(listing.Procedures) != 1 || listing.Procedures[0].Path != "users.get" {
		t.Errorf("procedures = %+v", listing.Procedures)
	}
	if len(listing.Aliases) != 1 || listing.Aliases[0].From != "getUser" {
		t.Errorf("aliases = %+v", listing.Aliases)
	}
}
