package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/vaultgate/pkg/vault"
)

var testVault = &vault.Config{VaultID: "v1", VaultURL: "https://abc.vault.skyflowapis.com", ClusterID: "abc", AccountID: "acc-1"}

func TestNew_CredentialShapes(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{"token", Credentials{Token: "a.b.c"}, false},
		{"api key", Credentials{APIKey: "sky-abc"}, false},
		{"none", Credentials{}, true},
		{"both", Credentials{Token: "a.b.c", APIKey: "sky-abc"}, true},
		{"whitespace", Credentials{APIKey: "sky abc"}, true},
		{"control char", Credentials{APIKey: "sky\x00abc"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(Config{Credentials: tt.creds, Vault: testVault})
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCredentials) {
					t.Errorf("err = %v, want ErrInvalidCredentials", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			c.Close()
		})
	}
}

func TestNew_RequiresVault(t *testing.T) {
	if _, err := New(Config{Credentials: Credentials{APIKey: "k"}}); err == nil {
		t.Error("expected error for missing vault config")
	}
}

func TestDeidentify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/detect/deidentify/string" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sky-abc" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-SKYFLOW-ACCOUNT-ID"); got != "acc-1" {
			t.Errorf("account header = %q", got)
		}
		var req stringRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.VaultID != "v1" || req.Text != "my ssn is 123-45-6789" {
			t.Errorf("unexpected body: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"processed_text":"my ssn is [SSN_1]","entities":[{"token":"[SSN_1]","entity_type":"ssn","start":10,"end":21}],"word_count":4,"character_count":21}`))
	}))
	defer srv.Close()

	c, err := New(Config{Credentials: Credentials{APIKey: "sky-abc"}, Vault: testVault, BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	res, err := c.Deidentify(context.Background(), "my ssn is 123-45-6789")
	if err != nil {
		t.Fatalf("Deidentify: %v", err)
	}
	if res.ProcessedText != "my ssn is [SSN_1]" {
		t.Errorf("ProcessedText = %q", res.ProcessedText)
	}
	if len(res.Entities) != 1 || res.Entities[0].EntityType != "ssn" {
		t.Errorf("Entities = %+v", res.Entities)
	}
}

func TestReidentify_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"token not authorized"}}`))
	}))
	defer srv.Close()

	c, _ := New(Config{Credentials: Credentials{Token: "a.b.c"}, Vault: testVault, BaseURL: srv.URL})
	defer c.Close()

	_, err := c.Reidentify(context.Background(), "[SSN_1]")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusForbidden || se.Message != "token not authorized" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestClose_Idempotent(t *testing.T) {
	c, _ := New(Config{Credentials: Credentials{APIKey: "k"}, Vault: testVault})
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Reidentify(context.Background(), "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("err after close = %v, want ErrClosed", err)
	}
}
