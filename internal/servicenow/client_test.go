package servicenow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClientValidatesURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "valid", url: "https://dev.service-now.example", wantErr: false},
		{name: "trailing slash trimmed", url: "https://dev.service-now.example/", wantErr: false},
		{name: "empty", url: "", wantErr: true},
		{name: "missing scheme", url: "dev.service-now.example", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewClient(Options{InstanceURL: tt.url})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewClient(%q) error=%v, wantErr=%v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestClientListDecodesRecords(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotQuery map[string][]string
	var gotAuthUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotAuthUser, _, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{
					"sys_id":   "rec1",
					"duration": map[string]string{"value": "1500", "display_value": "1,500"},
				},
			},
		})
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Options{
		InstanceURL: srv.URL,
		Username:    "analyst",
		Password:    "secret",
		Timeout:     2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	records, err := client.List(context.Background(), ListOptions{
		Table: "sn_aia_execution_task",
		Query: NewQuery().Eq("plan", "abc").String(),
		Limit: 50,
	})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}

	if gotPath != "/api/now/table/sn_aia_execution_task" {
		t.Fatalf("request path=%q, want %q", gotPath, "/api/now/table/sn_aia_execution_task")
	}
	if got := gotQuery["sysparm_query"]; len(got) != 1 || got[0] != "plan=abc" {
		t.Fatalf("sysparm_query=%v, want [plan=abc]", got)
	}
	if got := gotQuery["sysparm_limit"]; len(got) != 1 || got[0] != "50" {
		t.Fatalf("sysparm_limit=%v, want [50]", got)
	}
	if got := gotQuery["sysparm_display_value"]; len(got) != 1 || got[0] != "all" {
		t.Fatalf("sysparm_display_value=%v, want [all]", got)
	}
	if gotAuthUser != "analyst" {
		t.Fatalf("basic auth user=%q, want %q", gotAuthUser, "analyst")
	}

	if len(records) != 1 {
		t.Fatalf("len(records)=%d, want 1", len(records))
	}
	if got := records[0].SysID(); got != "rec1" {
		t.Fatalf("SysID()=%q, want %q", got, "rec1")
	}
	dur, ok := records[0].Int64("duration")
	if !ok || dur != 1500 {
		t.Fatalf("Int64(duration)=(%d,%v), want (1500,true)", dur, ok)
	}
}

func TestClientListCapsLimit(t *testing.T) {
	t.Parallel()

	var gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("sysparm_limit")
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Options{InstanceURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	if _, err := client.List(context.Background(), ListOptions{Table: "incident", Limit: 100000}); err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if gotLimit != "1000" {
		t.Fatalf("sysparm_limit=%q, want %q", gotLimit, "1000")
	}
}

func TestClientListRequiresTable(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Options{InstanceURL: "https://dev.service-now.example"})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	if _, err := client.List(context.Background(), ListOptions{}); err == nil {
		t.Fatal("List() error=nil, want missing table error")
	}
}

func TestClientListNonOKIsUnavailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
	}{
		{name: "forbidden", status: http.StatusForbidden},
		{name: "not found", status: http.StatusNotFound},
		{name: "server error", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			t.Cleanup(srv.Close)

			client, err := NewClient(Options{InstanceURL: srv.URL})
			if err != nil {
				t.Fatalf("NewClient() error: %v", err)
			}
			_, err = client.List(context.Background(), ListOptions{Table: "sys_cs_conversation"})
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("List() error=%v, want ErrUnavailable", err)
			}
		})
	}
}

func TestClientListMalformedBodyIsUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Options{InstanceURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	_, err = client.List(context.Background(), ListOptions{Table: "sys_cs_conversation"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("List() error=%v, want ErrUnavailable", err)
	}
}
