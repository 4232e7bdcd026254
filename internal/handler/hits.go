package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/hit-counter/internal/database"
	"github.com/iliyamo/hit-counter/internal/metrics"
	"github.com/iliyamo/hit-counter/internal/model"
	"github.com/iliyamo/hit-counter/internal/queue"
	"github.com/iliyamo/hit-counter/internal/repository"
)

// Connector hands out schema-selected connections.
type Connector interface {
	Connect(ctx context.Context) (*database.Connection, error)
}

// CounterStore is the ensure/increment/read contract over the counter.
type CounterStore interface {
	EnsureAndIncrement(ctx context.Context, conn *database.Connection) (int64, error)
	Read(ctx context.Context, conn *database.Connection) (int64, error)
}

// EventPublisher receives one event per counted page view.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.HitRecordedEvent) error
}

// HitsHandler bundles dependencies for the counter endpoints.
type HitsHandler struct {
	DB      Connector
	Counter CounterStore
	Events  EventPublisher
	Log     *zap.Logger

	// publish runs event delivery; tests replace it to run inline.
	publish  func(func())
	inflight sync.WaitGroup
}

// NewHitsHandler constructs a HitsHandler and panics if a required
// dependency is nil.  events may be nil.
func NewHitsHandler(db Connector, counter CounterStore, events EventPublisher, log *zap.Logger) *HitsHandler {
	if db == nil || counter == nil {
		panic("nil dependency passed to NewHitsHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	h := &HitsHandler{
		DB:      db,
		Counter: counter,
		Events:  events,
		Log:     log.Named("hits"),
	}
	h.publish = h.background
	return h
}

func (h *HitsHandler) background(f func()) {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		f()
	}()
}

// Drain waits for in-flight event publishes.  Call it once the server has
// stopped accepting requests.
func (h *HitsHandler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Page counts the request and renders the visitor message.
func (h *HitsHandler) Page(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	conn, err := h.DB.Connect(ctx)
	if err != nil {
		return h.renderError(c, "page.html", err)
	}
	defer conn.Close()

	n, err := h.Counter.EnsureAndIncrement(ctx, conn)
	if err != nil {
		return h.renderError(c, "page.html", err)
	}
	counter := model.HitCounter{Count: n}
	metrics.PageViews.Inc()
	h.emit(queue.HitRecordedEvent{
		Count:      n,
		FirstVisit: counter.IsFirstVisit(),
		RemoteIP:   c.RealIP(),
		RecordedAt: time.Now().UTC().Format(time.RFC3339),
	})

	return c.Render(http.StatusOK, "page.html", pageData{Counter: counter})
}

// Ping connects to the database and answers PONG!.
func (h *HitsHandler) Ping(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	conn, err := h.DB.Connect(ctx)
	if err != nil {
		return h.renderError(c, "ping.html", err)
	}
	if err := conn.Close(); err != nil {
		h.Log.Warn("close failed", zap.Error(err))
	}
	return c.Render(http.StatusOK, "ping.html", pageData{})
}

type countResp struct {
	Count int64 `json:"count"`
}

// Count returns the current value as JSON without incrementing it.
func (h *HitsHandler) Count(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	conn, err := h.DB.Connect(ctx)
	if err != nil {
		metrics.ObserveStoreError(err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": metrics.ErrorKind(err)})
	}
	defer conn.Close()

	n, err := h.Counter.Read(ctx, conn)
	if err != nil {
		metrics.ObserveStoreError(err)
		h.Log.Error("read counter failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": metrics.ErrorKind(err)})
	}
	return c.JSON(http.StatusOK, countResp{Count: n})
}

func (h *HitsHandler) emit(ev queue.HitRecordedEvent) {
	if h.Events == nil {
		return
	}
	h.publish(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Events.Publish(ctx, ev); err != nil {
			h.Log.Debug("publish hit event failed", zap.Error(err))
		}
	})
}

func (h *HitsHandler) renderError(c echo.Context, tmpl string, err error) error {
	metrics.ObserveStoreError(err)
	status, msg := diagnose(err)
	h.Log.Error("request failed", zap.String("path", c.Path()), zap.Int("status", status), zap.Error(err))
	return c.Render(status, tmpl, pageData{Error: msg})
}

// diagnose maps a store error to a status code and the message shown to the
// visitor.
func diagnose(err error) (int, string) {
	switch {
	case errors.Is(err, database.ErrConnectionFailed):
		return http.StatusServiceUnavailable, "Could not connect to database server"
	case errors.Is(err, database.ErrSchemaUnselectable):
		return http.StatusServiceUnavailable, "Could not select database."
	case errors.Is(err, repository.ErrSchemaCreateFailed):
		return http.StatusInternalServerError, "Could not create the hit counter."
	case errors.Is(err, repository.ErrUpdateFailed):
		return http.StatusInternalServerError, "Could not update the hit counter."
	case errors.Is(err, repository.ErrReadFailed):
		return http.StatusInternalServerError, "Could not read the hit counter."
	}
	return http.StatusInternalServerError, "Internal error."
}
