package router

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/hit-counter/internal/config"
	"github.com/iliyamo/hit-counter/internal/database"
	"github.com/iliyamo/hit-counter/internal/handler"
	"github.com/iliyamo/hit-counter/internal/repository"
)

func TestRoutes(t *testing.T) {
	log := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "hits.db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	c, err := database.NewConnector(config.DBConfig{
		Driver:         "sqlite",
		Name:           path,
		ConnectTimeout: 5 * time.Second,
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	limited := 0
	limiter := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error { limited++; return next(ctx) }
	}
	cached := 0
	cache := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error { cached++; return next(ctx) }
	}

	e := echo.New()
	e.Renderer = handler.NewRenderer()
	h := handler.NewHitsHandler(c, repository.NewCounterRepo(log), nil, log)
	RegisterRoutes(e)
	RegisterPages(e, h, limiter)
	RegisterAPI(e, h, cache)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/healthz").Code)
	assert.Contains(t, get("/").Body.String(), "first visitor")
	assert.Contains(t, get("/ping").Body.String(), "PONG!")
	assert.JSONEq(t, `{"count":1}`, get("/v1/hits").Body.String())

	metrics := get("/metrics")
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.True(t, strings.Contains(metrics.Body.String(), "hitcounter_page_views_total"))

	assert.Equal(t, 1, limited, "only the counted page is rate limited")

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get("/ping").Code)
	}
	assert.Equal(t, 1, limited)
	assert.Equal(t, 1, cached)
}
