package incident

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRESTLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/members" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("apikey") != "svc-key" {
			t.Fatalf("missing service key header")
		}
		switch r.URL.Query().Get("member_id") {
		case "eq.LT-1":
			w.Write([]byte(`[{"member_id":"LT-1","name":"John Moyo","blood_type":"O+"}]`))
		default:
			w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL, "svc-key", time.Second)

	member, ok, err := client.Lookup(context.Background(), "LT-1")
	if err != nil || !ok {
		t.Fatalf("lookup failed: ok=%v err=%v", ok, err)
	}
	if member.Name != "John Moyo" || member.BloodType != "O+" {
		t.Fatalf("unexpected member: %+v", member)
	}

	_, ok, err = client.Lookup(context.Background(), "LT-404")
	if err != nil {
		t.Fatalf("unknown member is not an error: %v", err)
	}
	if ok {
		t.Fatalf("unknown member must report ok=false")
	}
}

func TestRESTCreateIncident(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v1/incidents" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":"row-1","incident_number":"INC-42"}]`))
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL, "svc-key", time.Second)
	ref, err := client.CreateIncident(context.Background(), Incident{Number: "INC-42"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if ref.ID != "row-1" || ref.Number != "INC-42" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
}

func TestRESTDownstreamFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL, "svc-key", time.Second)
	if _, err := client.CreateIncident(context.Background(), Incident{}); !errors.Is(err, ErrDownstream) {
		t.Fatalf("want ErrDownstream for 500, got %v", err)
	}
	if _, _, err := client.Lookup(context.Background(), "LT-1"); !errors.Is(err, ErrDownstream) {
		t.Fatalf("want ErrDownstream for 500 lookup, got %v", err)
	}
}

func TestRESTCreateIncidentTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client := NewRESTClient(srv.URL, "svc-key", time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.CreateIncident(ctx, Incident{}); !errors.Is(err, ErrDownstream) {
		t.Fatalf("want ErrDownstream on timeout, got %v", err)
	}
}
