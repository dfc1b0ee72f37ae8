package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/diligence-cli/internal/entity"
	"github.com/sells-group/diligence-cli/internal/export"
	"github.com/sells-group/diligence-cli/internal/ingest"
	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the deal intake API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		inf, err := newInferencer(cfg)
		if err != nil {
			return err
		}

		mux := buildMux(st, inf, ingest.Config{
			Workers:             cfg.Ingest.Workers,
			SimilarityThreshold: cfg.Resolve.SimilarityThreshold,
			BreakerThreshold:    cfg.Resolve.BreakerThreshold,
		}, cfg.Server.RateLimit, cfg.Server.RateBurst)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// apiServer carries the dependencies the HTTP handlers need.
type apiServer struct {
	st     store.Store
	inf    *entity.Inferencer
	runCfg ingest.Config
}

// buildMux assembles the intake API router.
func buildMux(st store.Store, inf *entity.Inferencer, runCfg ingest.Config, rps float64, burst int) http.Handler {
	s := &apiServer{st: st, inf: inf, runCfg: runCfg}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(requestLogger)
	r.Use(rateLimiter(rps, burst))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/deals", func(r chi.Router) {
		r.Post("/", s.createDeal)
		r.Get("/", s.listDeals)
		r.Route("/{dealID}", func(r chi.Router) {
			r.Get("/", s.getDeal)
			r.Put("/status", s.updateDealStatus)
			r.Get("/records", s.listRecords)
			r.Post("/facts", s.runFacts)
			r.Get("/export", s.exportDeal)
			r.Get("/ledger", s.ledgerCounts)
		})
	})

	return r
}

func (s *apiServer) createDeal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Target string `json:"target"`
		Buyer  string `json:"buyer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	deal, err := model.NewDeal(req.Name, req.Target, req.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.st.CreateDeal(r.Context(), deal); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deal)
}

func (s *apiServer) listDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := s.st.ListDeals(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deals)
}

func (s *apiServer) getDeal(w http.ResponseWriter, r *http.Request) {
	deal, err := s.st.GetDeal(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

func (s *apiServer) updateDealStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status := model.DealStatus(req.Status)
	switch status {
	case model.DealStatusOpen, model.DealStatusReview, model.DealStatusClosed, model.DealStatusArchived:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", req.Status))
		return
	}

	if err := s.st.UpdateDealStatus(r.Context(), chi.URLParam(r, "dealID"), status); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (s *apiServer) listRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.RecordFilter{}
	if v := q.Get("kind"); v != "" {
		kind, err := model.ParseKind(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Kind = kind
	}
	if v := q.Get("entity"); v != "" {
		ent, err := entity.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Entity = ent
	}
	filter.IncludeRetired = q.Get("retired") == "true"
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	recs, err := s.st.ListRecords(r.Context(), chi.URLParam(r, "dealID"), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// runFacts accepts a JSON array of candidate facts and runs them through the
// reconciliation kernel synchronously, returning the run outcome.
func (s *apiServer) runFacts(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")

	var facts []model.CandidateFact
	if err := json.NewDecoder(r.Body).Decode(&facts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := s.st.GetDeal(r.Context(), dealID); err != nil {
		writeStoreError(w, err)
		return
	}

	runner := ingest.NewRunner(s.runCfg, s.inf, s.st)
	if err := runner.Hydrate(r.Context(), dealID); err != nil {
		writeStoreError(w, err)
		return
	}
	out, err := runner.Run(r.Context(), dealID, facts)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) exportDeal(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")

	deal, err := s.st.GetDeal(r.Context(), dealID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	recs, err := s.st.ListRecords(r.Context(), dealID, store.RecordFilter{IncludeRetired: true})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out, err := export.ExportDeal(deal, recs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) ledgerCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.st.LedgerCounts(r.Context(), chi.URLParam(r, "dealID"), r.URL.Query().Get("document"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// requestLogger logs each request with status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// rateLimiter bounds the request rate across all clients with a single
// token bucket.
func rateLimiter(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
