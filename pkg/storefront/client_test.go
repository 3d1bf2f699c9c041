package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/commercebridge/retail-middleware/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(&config.StorefrontConfig{
		APIURL:          srv.URL,
		AccessToken:     "test-token",
		MinCallInterval: 0,
		MaxRetries:      3,
		RequestTimeout:  5 * time.Second,
	}, zap.NewNop())

	var sleeps []time.Duration
	client.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return client, &sleeps
}

func writeLocations(w http.ResponseWriter) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{
			"locations": map[string]any{
				"nodes": []map[string]string{{"id": "gid://Location/1"}},
			},
		},
	})
}

func TestClient_RateLimitHonorsRetryAfterHeader(t *testing.T) {
	var requests int
	client, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeLocations(w)
	})

	id, err := client.DefaultLocationID(context.Background())
	if err != nil {
		t.Fatalf("DefaultLocationID failed: %v", err)
	}
	if id != "gid://Location/1" {
		t.Errorf("unexpected location id %s", id)
	}
	if requests != 2 {
		t.Errorf("expected 2 requests, got %d", requests)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 3*time.Second {
		t.Errorf("expected a single 3s sleep from Retry-After, got %v", *sleeps)
	}
}

func TestClient_ThrottledGraphQLErrorUsesDefaultDelay(t *testing.T) {
	var requests int
	client, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"errors": []map[string]any{{
					"message":    "Throttled",
					"extensions": map[string]string{"code": "THROTTLED"},
				}},
			})
			return
		}
		writeLocations(w)
	})

	if _, err := client.DefaultLocationID(context.Background()); err != nil {
		t.Fatalf("DefaultLocationID failed: %v", err)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != defaultRetryAfter {
		t.Errorf("expected default retry-after sleep, got %v", *sleeps)
	}
}

func TestClient_BusinessRejectionRaisedImmediately(t *testing.T) {
	var requests int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "Field 'title' is required"}},
		})
	})

	_, err := client.DefaultLocationID(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Retryable {
		t.Error("business rejection must not be retryable")
	}
	if !IsBusinessRejection(err) {
		t.Error("expected IsBusinessRejection to match")
	}
	if requests != 1 {
		t.Errorf("expected no retries, got %d requests", requests)
	}
}

func TestClient_ClientErrorStatusNotRetried(t *testing.T) {
	var requests int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.DefaultLocationID(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Retryable {
		t.Fatalf("expected non-retryable APIError, got %v", err)
	}
	if requests != 1 {
		t.Errorf("expected 1 request, got %d", requests)
	}
}

func TestClient_ServerErrorsBackOffExponentially(t *testing.T) {
	var requests int
	client, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.DefaultLocationID(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if !apiErr.Retryable {
		t.Error("exhausted transient failures should be retryable")
	}

	if requests != 4 {
		t.Errorf("expected maxRetries+1 = 4 requests, got %d", requests)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %v", len(want), *sleeps)
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Errorf("backoff %d: expected %s, got %s", i, d, (*sleeps)[i])
		}
	}
}

func TestClient_PersistentThrottlingExhaustsAttemptBudget(t *testing.T) {
	var requests int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.DefaultLocationID(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Retryable {
		t.Fatalf("expected retryable APIError after exhausted budget, got %v", err)
	}
	if requests != 4 {
		t.Errorf("expected attempt budget of 4 requests, got %d", requests)
	}
}

func TestClient_SendsAccessTokenHeader(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Access-Token"); got != "test-token" {
			t.Errorf("expected access token header, got %q", got)
		}
		writeLocations(w)
	})

	if _, err := client.DefaultLocationID(context.Background()); err != nil {
		t.Fatalf("DefaultLocationID failed: %v", err)
	}
}

func TestClient_ExistsBatchMapsAbsentToNil(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"productVariants": map[string]any{
					"nodes": []map[string]any{{
						"id":                "gid://Variant/1",
						"sku":               "A-1",
						"inventoryQuantity": 7,
						"inventoryItem":     map[string]string{"id": "gid://Inv/1"},
						"product":           map[string]string{"id": "gid://Product/1", "title": "Item A-1"},
					}},
				},
			},
		})
	})

	result, err := client.ExistsBatch(context.Background(), []string{"A-1", "A-2"})
	if err != nil {
		t.Fatalf("ExistsBatch failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected entries for every requested SKU, got %d", len(result))
	}
	if result["A-1"] == nil || result["A-1"].Quantity != 7 {
		t.Errorf("expected A-1 present with quantity 7, got %+v", result["A-1"])
	}
	if result["A-2"] != nil {
		t.Errorf("expected A-2 absent (nil), got %+v", result["A-2"])
	}
}
