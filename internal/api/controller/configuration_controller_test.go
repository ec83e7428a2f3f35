package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bassista/labasica/internal/config"
	"github.com/bassista/labasica/internal/store"
	"github.com/gin-gonic/gin"
)

type fakeLoader map[string]store.Document

func (f fakeLoader) Load(_ context.Context, name string) store.Document {
	doc, ok := f[name]
	if !ok {
		return nil
	}
	out := store.Document{}
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func TestConfigurationController_GetConfiguration(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Sync: config.SyncConfig{Interval: 30 * time.Second},
		Cart: config.CartConfig{
			SyncInterval:          time.Second,
			FreeShippingThreshold: 2000,
			ShippingCost:          250,
			PointsRate:            0.01,
		},
	}

	tests := []struct {
		name         string
		docs         fakeLoader
		expectedSite map[string]any
	}{
		{
			name: "forwards site document without timestamp",
			docs: fakeLoader{"config.json": {
				"siteName":             "La Básica",
				store.LastUpdatedField: "2024-01-01T00:00:00.000Z",
			}},
			expectedSite: map[string]any{"siteName": "La Básica"},
		},
		{
			name:         "missing site document yields empty object",
			docs:         fakeLoader{},
			expectedSite: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			controller := NewConfigurationController(cfg, tt.docs)

			router := gin.New()
			router.GET("/configuration", controller.GetConfiguration)

			req, err := http.NewRequest(http.MethodGet, "/configuration", nil)
			if err != nil {
				t.Fatalf("failed to create request: %v", err)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}

			var resp struct {
				Site                  map[string]any `json:"site"`
				FreeShippingThreshold float64        `json:"freeShippingThreshold"`
				ShippingCost          float64        `json:"shippingCost"`
				PointsRate            float64        `json:"pointsRate"`
				SyncIntervalSec       int            `json:"syncIntervalSec"`
				CartSyncIntervalMs    int64          `json:"cartSyncIntervalMs"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}

			if len(resp.Site) != len(tt.expectedSite) {
				t.Errorf("expected site %v, got %v", tt.expectedSite, resp.Site)
			}
			for k, v := range tt.expectedSite {
				if resp.Site[k] != v {
					t.Errorf("site[%q]: expected %v, got %v", k, v, resp.Site[k])
				}
			}
			if resp.FreeShippingThreshold != 2000 || resp.ShippingCost != 250 || resp.PointsRate != 0.01 {
				t.Errorf("unexpected pricing: %+v", resp)
			}
			if resp.SyncIntervalSec != 30 || resp.CartSyncIntervalMs != 1000 {
				t.Errorf("unexpected intervals: %+v", resp)
			}
		})
	}
}
