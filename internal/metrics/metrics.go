// Package metrics holds the Prometheus collectors for the counter service.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/hit-counter/internal/database"
	"github.com/iliyamo/hit-counter/internal/repository"
)

var (
	PageViews = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hitcounter",
		Name:      "page_views_total",
		Help:      "Number of page views successfully counted by this instance",
	})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hitcounter",
		Name:      "store_errors_total",
		Help:      "Failed requests by the step of the store interaction that failed",
	}, []string{"kind"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hitcounter",
		Name:      "events_published_total",
		Help:      "hits.recorded publish attempts by result",
	}, []string{"result"})
)

// ErrorKind maps a store error to its label value.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, database.ErrConnectionFailed):
		return "connection_failed"
	case errors.Is(err, database.ErrSchemaUnselectable):
		return "schema_unselectable"
	case errors.Is(err, repository.ErrSchemaCreateFailed):
		return "schema_create_failed"
	case errors.Is(err, repository.ErrUpdateFailed):
		return "update_failed"
	case errors.Is(err, repository.ErrReadFailed):
		return "read_failed"
	}
	return "other"
}

// ObserveStoreError counts err under its kind.
func ObserveStoreError(err error) {
	StoreErrors.WithLabelValues(ErrorKind(err)).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
