package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/carebook/internal/backend"
	"github.com/wolfman30/carebook/pkg/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c, err := NewClient(backend.Config{BaseURL: ts.URL, Logger: logging.Default()})
	require.NoError(t, err)
	return c
}

func TestListServices_Envelopes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bare array", `[{"id":"svc_1","name":"Psychology consult","providerId":"prac_1","priceCents":150000,"currency":"IDR","category":"mental-health"}]`},
		{"services envelope", `{"services":[{"id":"svc_1","name":"Psychology consult","providerId":"prac_1","priceCents":150000,"currency":"IDR","category":"mental-health"}]}`},
		{"data envelope", `{"data":[{"_id":"svc_1","title":"Psychology consult","provider":"prac_1","price":1500,"currency":"IDR","category":"mental-health"}]}`},
		{"nested data envelope", `{"success":true,"data":{"services":[{"id":"svc_1","name":"Psychology consult","providerId":"prac_1","priceCents":150000,"currency":"IDR","category":"mental-health"}]}}`},
	}

	want := ServiceListing{
		ID:         "svc_1",
		Name:       "Psychology consult",
		ProviderID: "prac_1",
		PriceCents: 150000,
		Currency:   "IDR",
		Category:   "mental-health",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/api/services", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			})

			services, err := c.ListServices(context.Background())
			require.NoError(t, err)
			require.Len(t, services, 1)
			assert.Equal(t, want, services[0])
		})
	}
}

func TestListServices_IdempotentOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"svc_3","name":"C"},{"id":"svc_1","name":"A"},{"id":"svc_2","name":"B"}]`))
	})

	first, err := c.ListServices(context.Background())
	require.NoError(t, err)
	second, err := c.ListServices(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	ids := make([]string, 0, len(first))
	for _, s := range first {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"svc_3", "svc_1", "svc_2"}, ids)
}

func TestListServices_SkipsEntriesWithoutID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"services":[{"name":"orphan"},{"id":"svc_1","name":"A"}]}`))
	})

	services, err := c.ListServices(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "svc_1", services[0].ID)
}

func TestListServices_PriceConversion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"services":[
			{"id":"svc_round","price":19.996},
			{"id":"svc_float","price":0.29},
			{"id":"svc_negative","price":-12.5},
			{"id":"svc_zero","priceCents":0},
			{"id":"svc_huge","price":1e300},
			{"id":"svc_cents","priceCents":4200},
			{"id":"svc_unpriced"}
		]}`))
	})

	services, err := c.ListServices(context.Background())
	require.NoError(t, err)

	got := map[string]int64{}
	for _, s := range services {
		got[s.ID] = s.PriceCents
	}
	assert.Equal(t, map[string]int64{
		"svc_round":    2000,
		"svc_float":    29,
		"svc_cents":    4200,
		"svc_unpriced": 0,
	}, got)
}

func TestListServices_EmptyListIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"services":[]}`))
	})

	services, err := c.ListServices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, services)
}

func TestListServices_Malformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":     "not json",
		"empty":        "",
		"wrong shape":  `{"items":[]}`,
		"string array": `["svc_1"]`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})

			_, err := c.ListServices(context.Background())
			var malformed *backend.MalformedResponseError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, body, malformed.RawBody)
		})
	}
}

func TestListServices_UpstreamUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	_, err := c.ListServices(context.Background())
	assert.True(t, errors.Is(err, backend.ErrUpstreamUnavailable))

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()
	down, err := NewClient(backend.Config{BaseURL: url})
	require.NoError(t, err)
	_, err = down.ListServices(context.Background())
	assert.True(t, errors.Is(err, backend.ErrUpstreamUnavailable))
	assert.Equal(t, backend.KindUnavailable, backend.Classify(err))
}

func TestListServices_ClientErrorIsRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})
	_, err := c.ListServices(context.Background())
	assert.Equal(t, backend.KindRejected, backend.Classify(err))
	assert.Equal(t, http.StatusForbidden, backend.StatusCode(err))
}
