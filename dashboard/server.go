// Package dashboard serves the readings log over HTTP: latest status as text
// and JSON, and the recent series as HTML, PNG and PDF plots.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/evkuzin/cicadawatch/config"
	"github.com/evkuzin/cicadawatch/status"
	"github.com/evkuzin/cicadawatch/storage"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cicadawatch_dashboard_evaluations_total",
	Help: "Total number of status evaluations, by outcome.",
}, []string{"outcome"})

type Server struct {
	store  storage.Adapter
	logger *logrus.Logger
	eval   status.Config
	window time.Duration
	addr   string
	router *mux.Router

	// now is the evaluation clock; log timestamps are naive, so it reads UTC.
	now func() time.Time
	pdf func(html []byte) ([]byte, error)
}

func NewServer(store storage.Adapter, conf *config.Config, logger *logrus.Logger) *Server {
	s := &Server{
		store:  store,
		logger: logger,
		eval:   conf.EvaluatorConfig(),
		window: conf.Server.PlotWindow,
		addr:   conf.Server.Addr,
		now:    func() time.Time { return time.Now().UTC() },
		pdf:    htmlToPDF,
	}
	s.router = s.newRouter()
	return s
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.index).Methods("GET")
	r.HandleFunc("/latest/{column}", s.latest).Methods("GET")
	r.HandleFunc("/latestjson/{column}", s.latestJSON).Methods("GET")
	r.HandleFunc("/plot/{column}", s.htmlPlot).Methods("GET")
	r.HandleFunc("/png/{column}", s.pngPlot).Methods("GET")
	r.HandleFunc("/pdf/{column}", s.pdfPlot).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           handlers.LoggingHandler(s.logger.Out, s),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnf("dashboard shutdown: %s", err)
		}
	}()

	s.logger.Infof("dashboard listening on %s", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	cols, err := s.store.Columns()
	if err != nil {
		s.writeError(w, "", err)
		return
	}
	fmt.Fprintf(w, "try /latest/<colname>, /latestjson/<colname>, /plot/<colname>, /png/<colname>, /pdf/<colname>.  <colname> can be: [%s]",
		strings.Join(cols, ", "))
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) {
	column := mux.Vars(r)["column"]
	res, err := s.evaluate(column)
	if err != nil {
		s.writeError(w, column, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, status.Describe(res))
}

func (s *Server) latestJSON(w http.ResponseWriter, r *http.Request) {
	column := mux.Vars(r)["column"]
	res, err := s.evaluate(column)
	if err != nil {
		s.writeError(w, column, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.logger.Warnf("cannot encode status for %s: %s", column, err)
	}
}

func (s *Server) evaluate(column string) (status.Result, error) {
	series, err := s.store.Series(column)
	if err != nil {
		evaluations.WithLabelValues("source_error").Inc()
		return nil, err
	}
	res, err := status.Evaluate(series, column, s.eval, s.now())
	if err != nil {
		evaluations.WithLabelValues("unavailable").Inc()
		return nil, err
	}
	evaluations.WithLabelValues("ok").Inc()
	return res, nil
}

// recent returns the plot window of column, ending at its latest sample and
// sorted by time.
func (s *Server) recent(column string) ([]status.Sample, error) {
	series, err := s.store.Series(column)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, &status.EmptySeriesError{Column: column}
	}
	sorted := append([]status.Sample(nil), series...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	start := sorted[len(sorted)-1].Time.Add(-s.window)
	i := sort.Search(len(sorted), func(i int) bool { return !sorted[i].Time.Before(start) })
	return sorted[i:], nil
}

// threshold is the emergence line for temperature columns.
func (s *Server) threshold(column string) (float64, bool) {
	unit, ok := status.UnitOf(column)
	if !ok {
		return 0, false
	}
	return unit.FromF(s.eval.ThresholdF), true
}

func (s *Server) writeError(w http.ResponseWriter, column string, err error) {
	var (
		unknown *status.UnknownColumnError
		empty   *status.EmptySeriesError
		stale   *status.NoDataInWindowError
	)
	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &unknown):
		code = http.StatusNotFound
	case errors.As(err, &empty), errors.As(err, &stale):
		code = http.StatusServiceUnavailable
	}
	s.logger.WithField("column", column).Warnf("request failed: %s", err)
	http.Error(w, fmt.Sprintf("%s not available: %s", column, err), code)
}
