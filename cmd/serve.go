package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/arogya-labs/warehouse-cli/internal/config"
	"github.com/arogya-labs/warehouse-cli/internal/ingest"
	"github.com/arogya-labs/warehouse-cli/internal/store"
	"github.com/arogya-labs/warehouse-cli/internal/tabular"
)

const maxUploadBytes = 32 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingestion HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newAPIRouter(ingest.New(st), st, cfg.Server),
		}

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

// newAPIRouter builds the ingestion API: upload, job history, per-job error
// listing, and the CSV template download.
func newAPIRouter(pipeline *ingest.Pipeline, st store.Store, serverCfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: serverCfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	limiter := rate.NewLimiter(rate.Limit(serverCfg.RateLimitRPS), serverCfg.RateLimitBurst)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/ingestion/patient-visits", func(w http.ResponseWriter, req *http.Request) {
		if !limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}

		req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
		file, header, err := req.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no file part in the request"})
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read upload"})
			return
		}
		if len(content) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "uploaded file is empty"})
			return
		}

		summary, err := pipeline.Run(req.Context(), content, header.Filename)
		if err != nil {
			var schemaErr *tabular.SchemaError
			if eris.Is(err, tabular.ErrUnsupportedFormat) || errors.As(err, &schemaErr) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			zap.L().Error("upload processing failed",
				zap.String("file", header.Filename),
				zap.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ingestion failed"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"message":     "file processed successfully",
			"job_summary": summary,
		})
	})

	r.Get("/api/ingestion/jobs", func(w http.ResponseWriter, req *http.Request) {
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		jobs, err := st.ListJobs(req.Context(), limit)
		if err != nil {
			zap.L().Error("list jobs failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
			return
		}
		writeJSON(w, http.StatusOK, jobs)
	})

	r.Get("/api/ingestion/jobs/{jobID}/errors", func(w http.ResponseWriter, req *http.Request) {
		jobID, err := strconv.ParseInt(chi.URLParam(req, "jobID"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid job id"})
			return
		}

		entries, err := st.ListJobErrors(req.Context(), jobID, 0)
		if err != nil {
			zap.L().Error("list job errors failed", zap.Int64("job_id", jobID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
			return
		}

		out := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			var payload map[string]string
			_ = json.Unmarshal(e.RawPayload, &payload)
			out = append(out, map[string]any{
				"staging_id":    e.ID,
				"raw_payload":   payload,
				"status":        e.Status,
				"error_message": e.ErrorMessage,
				"processed_at":  e.ProcessedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/api/ingestion/template", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename=patient_visit_template.csv`)
		w.WriteHeader(http.StatusOK)
		w.Write(tabular.TemplateCSV())
	})

	return r
}

// requestLogger tags each request with an id and logs its outcome.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		reqID := uuid.New().String()
		w.Header().Set("X-Request-Id", reqID)

		next.ServeHTTP(w, req)

		zap.L().Info("request",
			zap.String("request_id", reqID),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
