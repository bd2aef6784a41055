package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"edgar-reconciliation-service/cmd/reconciler/config"
	"edgar-reconciliation-service/internal/gate"
	"edgar-reconciliation-service/internal/reconciler"
	"edgar-reconciliation-service/internal/reporter"
	apperrors "edgar-reconciliation-service/pkg/errors"
	"edgar-reconciliation-service/pkg/logger"
)

var listenAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation HTTP API",
	Long: `Serve exposes the reconciliation pipeline over HTTP.

One run executes at a time; callers are admitted by tier (X-Api-Tier header:
anonymous, standard, premium). Anonymous callers are bounced immediately when
a run is in progress, the other tiers queue up to their wait budget.

Endpoints:
  POST /runs     body {"ticker","year","quarter","full_year"}, optional ?format=json|csv
  GET  /healthz  liveness probe`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&listenAddr, "listen-addr", "", "bind address (default :8080)")
	serveCmd.Flags().Duration(config.KeyStandardWait, 0, "slot wait budget for the standard tier")
	serveCmd.Flags().Duration(config.KeyPremiumWait, 0, "slot wait budget for the premium tier")

	viper.BindPFlag(config.KeyListenAddr, serveCmd.Flags().Lookup("listen-addr"))
	viper.BindPFlag(config.KeyStandardWait, serveCmd.Flags().Lookup(config.KeyStandardWait))
	viper.BindPFlag(config.KeyPremiumWait, serveCmd.Flags().Lookup(config.KeyPremiumWait))
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger()

	orchestrator, err := buildOrchestrator(log)
	if err != nil {
		return err
	}

	gateConfig, err := config.CreateGateConfig()
	if err != nil {
		return err
	}
	admission, err := gate.New(gateConfig, log)
	if err != nil {
		return err
	}

	server := newAPIServer(orchestrator, admission, log)
	addr := config.ListenAddr()

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: config.RequestTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("HTTP API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-done:
	}

	log.Info("Shutting down HTTP API")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

// apiServer handles the HTTP surface of the reconciliation pipeline
type apiServer struct {
	orchestrator *reconciler.Orchestrator
	admission    *gate.Gate
	logger       logger.Logger
}

func newAPIServer(orchestrator *reconciler.Orchestrator, admission *gate.Gate, log logger.Logger) *apiServer {
	return &apiServer{
		orchestrator: orchestrator,
		admission:    admission,
		logger:       log.WithComponent("api"),
	}
}

func (s *apiServer) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/runs", s.handleRun)
	return r
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	var request reconciler.Request
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := request.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err)
		return
	}

	tier := gate.Tier(r.Header.Get("X-Api-Tier"))
	if tier == "" {
		tier = gate.TierAnonymous
	}
	if !tier.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown tier", nil)
		return
	}

	release, err := s.admission.Acquire(r.Context(), tier)
	if err != nil {
		status := http.StatusServiceUnavailable
		if perr, ok := apperrors.AsPipelineError(err); ok && perr.Code == apperrors.CodeSlotBusy {
			status = http.StatusTooManyRequests
		}
		writeError(w, status, "run slot unavailable", err)
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), config.RequestTimeout())
	defer cancel()

	result, err := s.orchestrator.Run(ctx, &request)
	if err != nil {
		s.logger.WithError(err).WithFields(logger.Fields{
			"ticker":  request.Ticker,
			"year":    request.Year,
			"quarter": request.Quarter,
		}).Error("Run failed")
		writeRunError(w, result, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	reportConfig, err := config.CreateReportConfig(format)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid format", err)
		return
	}
	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "report setup failed", err)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(reportConfig.Format))
	w.WriteHeader(http.StatusOK)
	if err := generator.GenerateReport(result, w); err != nil {
		s.logger.WithError(err).Error("Report generation failed mid-response")
	}
}

// writeRunError maps pipeline failures onto HTTP statuses: configuration
// problems are the caller's fault, missing filings are unprocessable, the
// rest is on us.
func writeRunError(w http.ResponseWriter, result *reconciler.Result, err error) {
	status := http.StatusInternalServerError
	if perr, ok := apperrors.AsPipelineError(err); ok {
		switch perr.Category {
		case apperrors.CategoryConfiguration:
			status = http.StatusBadRequest
		case apperrors.CategoryCalendar, apperrors.CategoryMatch:
			status = http.StatusUnprocessableEntity
		case apperrors.CategoryFetch:
			status = http.StatusBadGateway
		}
	}

	body := map[string]interface{}{"error": err.Error()}
	if perr, ok := apperrors.AsPipelineError(err); ok {
		body["category"] = perr.Category
		body["code"] = perr.Code
		if perr.Suggestion != "" {
			body["suggestion"] = perr.Suggestion
		}
	}
	if result != nil {
		body["status"] = result.Status
	}
	writeJSON(w, status, body)
}

func contentTypeFor(format reporter.OutputFormat) string {
	switch format {
	case reporter.FormatJSON:
		return "application/json"
	case reporter.FormatCSV:
		return "text/csv"
	case reporter.FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]interface{}{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}
