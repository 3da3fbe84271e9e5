package emotion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClassify_FlatResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]string
		if err := json.Unmarshal(body, &req); err != nil || req["inputs"] != "I am furious" {
			t.Errorf("request body = %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"label":"anger","score":0.81},{"label":"neutral","score":0.12}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client())
	signals, err := c.Classify(context.Background(), "I am furious")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("len(signals) = %d, want 2", len(signals))
	}
	if signals[0].Label != "anger" || signals[0].Score != 0.81 {
		t.Fatalf("signals[0] = %+v", signals[0])
	}
}

func TestClassify_BatchedResponseSortedAndTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[[{"label":"Joy","score":0.1},{"label":"Anger","score":0.6},{"label":"Fear","score":0.2},{"label":"Sadness","score":0.05},{"label":"Neutral","score":0.05}]]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client())
	signals, err := c.Classify(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(signals) != 3 {
		t.Fatalf("len(signals) = %d, want top 3", len(signals))
	}
	if signals[0].Label != "anger" || signals[1].Label != "fear" || signals[2].Label != "joy" {
		t.Fatalf("signals = %+v, want score-descending lowercase labels", signals)
	}
}

func TestClassify_BearerTokenForwarded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer hf_test" {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = w.Write([]byte(`[{"label":"neutral","score":1.0}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "hf_test", srv.Client())
	if _, err := c.Classify(context.Background(), "hello"); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
}

func TestClassify_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client())
	if _, err := c.Classify(context.Background(), "hello"); err == nil {
		t.Fatalf("Classify() error = nil, want failure on status 503")
	}
}

func TestClassify_Unconfigured(t *testing.T) {
	c := NewClient("", "", nil)
	if c.Configured() {
		t.Fatalf("Configured() = true without endpoint")
	}
	if _, err := c.Classify(context.Background(), "hello"); err == nil {
		t.Fatalf("Classify() error = nil, want unconfigured failure")
	}
}

func TestClassify_EmptyLabels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client())
	if _, err := c.Classify(context.Background(), "hello"); err == nil {
		t.Fatalf("Classify() error = nil, want failure on empty labels")
	}
}
