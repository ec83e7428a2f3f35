package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const storefronts = "https://labasica.example, http://localhost:5173"

func corsEngine(allowed string, reached *bool) *gin.Engine {
	r := gin.New()
	r.Use(CORSMiddleware(allowed))
	api := r.Group("/api")
	api.GET("/products", func(c *gin.Context) {
		*reached = true
		c.JSON(http.StatusOK, gin.H{"products": []any{}})
	})
	api.PATCH("/products/:id", func(c *gin.Context) {
		*reached = true
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	return r
}

func TestCORS_SimpleRequests(t *testing.T) {
	tests := []struct {
		name        string
		allowed     string
		origin      string
		wantOrigin  string
		wantCreds   string
		wantVary    string
		wantMethods bool
	}{
		{"listed storefront is echoed with credentials", storefronts, "https://labasica.example", "https://labasica.example", "true", "Origin", true},
		{"second entry is trimmed and matched", storefronts, "http://localhost:5173", "http://localhost:5173", "true", "Origin", true},
		{"wildcard never allows credentials", "*", "https://anywhere.example", "*", "", "", true},
		{"unlisted origin gets no headers", storefronts, "https://evil.example", "", "", "", false},
		{"scheme must match", storefronts, "http://labasica.example", "", "", "", false},
		{"same-origin request gets no headers", storefronts, "", "", "", "", false},
		{"empty list allows nobody", "", "https://labasica.example", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reached bool
			r := corsEngine(tt.allowed, &reached)

			req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.True(t, reached, "the handler still runs")
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, w.Header().Get("Access-Control-Allow-Credentials"))
			assert.Equal(t, tt.wantVary, w.Header().Get("Vary"))
			assert.Equal(t, tt.wantMethods, w.Header().Get("Access-Control-Allow-Methods") != "")
		})
	}
}

func TestCORS_PreflightForRecordUpdate(t *testing.T) {
	var reached bool
	r := corsEngine(storefronts, &reached)

	req := httptest.NewRequest(http.MethodOptions, "/api/products/7", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-Requested-With")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, reached, "preflight stops before the handler")
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
	assert.Equal(t, "Content-Type, X-Requested-With", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	assert.Empty(t, w.Body.String())
}

func TestCORS_PreflightDefaults(t *testing.T) {
	var reached bool
	r := corsEngine("*", &reached)

	req := httptest.NewRequest(http.MethodOptions, "/api/products/7", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, defaultAllowHeaders, w.Header().Get("Access-Control-Allow-Headers"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_PreflightFromUnlistedOrigin(t *testing.T) {
	var reached bool
	r := corsEngine(storefronts, &reached)

	req := httptest.NewRequest(http.MethodOptions, "/api/products/7", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// answered, but without headers the browser refuses the real request
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, reached)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Methods"))
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		allowed string
		origin  string
		want    bool
	}{
		{"*", "https://labasica.example", true},
		{" * ", "", true},
		{storefronts, "https://labasica.example", true},
		{storefronts, "http://localhost:5173", true},
		{storefronts, "http://localhost:5174", false},
		{storefronts, "https://labasica.example/", false},
		{storefronts, "", false},
		{"", "https://labasica.example", false},
		{"", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OriginAllowed(tt.allowed, tt.origin), "OriginAllowed(%q, %q)", tt.allowed, tt.origin)
	}
}
