package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/collabdraw/collabdraw/internal/config"
	"github.com/collabdraw/collabdraw/internal/relay"
	"github.com/collabdraw/collabdraw/internal/stats"
	"github.com/collabdraw/collabdraw/internal/store"
	"github.com/collabdraw/collabdraw/internal/testutil"
)

func TestNewBoardApp(t *testing.T) {
	mux := http.NewServeMux()
	logger := testutil.TestLogger(t)
	rs := &relay.RelayServer{}
	db := &store.MockBoardRepository{}
	cfg := &config.Config{
		ServerAddr:     "localhost:8080",
		DatabaseDSN:    "dsn",
		SigningKey:     []byte("secret"),
		AllowedOrigins: []string{"http://localhost:3000"},
	}

	app := NewBoardApp(mux, logger, rs, db, stats.NoopStats{}, cfg)
	assert.NotNil(t, app, "expected app to be non-nil")
	assert.Equal(t, logger, app.log, "expected logger to be set")
	assert.Equal(t, db, app.store, "expected board repository to be set")
	assert.Equal(t, rs, app.rs, "expected relay server to be set")
	assert.Equal(t, cfg.SigningKey, app.signingKey, "expected signing key to be set")
	assert.Equal(t, cfg.ServerAddr, app.mux.Addr, "expected server address to be set")

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/ws"},
		{http.MethodPost, "/api/guest-token"},
		{http.MethodGet, "/api/strokes"},
		{http.MethodPost, "/api/strokes"},
		{http.MethodDelete, "/api/strokes"},
		{http.MethodGet, "/healthz"},
	}

	for _, route := range routes {
		r, err := http.NewRequest(route.method, route.path, nil)
		assert.NoError(t, err, "expected request to build")
		_, pattern := mux.Handler(r)
		assert.Equalf(t, route.method+" "+route.path, pattern,
			"expected a handler registered for %s %s", route.method, route.path)
	}
}
