package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/analysis-engine/internal/model"
	"github.com/sells-group/analysis-engine/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger and read surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/analyses", func(w http.ResponseWriter, req *http.Request) {
			var body model.AnalysisRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if body.CompanyName == "" || body.Website == "" {
				writeError(w, http.StatusBadRequest, "company_name and website are required")
				return
			}

			job, err := env.Store.CreateJob(req.Context(), body)
			if err != nil {
				zap.L().Error("create job failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to create job")
				return
			}

			// Run the analysis under the server's lifecycle, not the
			// request's, so it survives the client disconnecting.
			go func() {
				if err := env.Pipeline.ProcessAnalysis(ctx, job.ID); err != nil {
					zap.L().Error("analysis failed",
						zap.String("job_id", job.ID),
						zap.String("company", body.CompanyName),
						zap.Error(err),
					)
				}
			}()

			writeJSON(w, http.StatusAccepted, job)
		})

		r.Get("/analyses/{id}", func(w http.ResponseWriter, req *http.Request) {
			job, err := env.Store.GetJob(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusNotFound, "job not found")
					return
				}
				zap.L().Error("get job failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to load job")
				return
			}
			writeJSON(w, http.StatusOK, job)
		})

		r.Get("/analyses", func(w http.ResponseWriter, req *http.Request) {
			filter := store.JobFilter{
				Status:      model.JobStatus(req.URL.Query().Get("status")),
				CompanyName: req.URL.Query().Get("company"),
			}
			if raw := req.URL.Query().Get("limit"); raw != "" {
				limit, err := strconv.Atoi(raw)
				if err != nil || limit < 0 {
					writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
					return
				}
				filter.Limit = limit
			}

			jobs, err := env.Store.ListJobs(req.Context(), filter)
			if err != nil {
				zap.L().Error("list jobs failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to list jobs")
				return
			}
			writeJSON(w, http.StatusOK, jobs)
		})

		r.Get("/events", func(w http.ResponseWriter, req *http.Request) {
			flusher, ok := w.(http.Flusher)
			if !ok {
				writeError(w, http.StatusInternalServerError, "streaming unsupported")
				return
			}

			ch, unsubscribe := env.Bus.Subscribe(64)
			defer unsubscribe()

			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			flusher.Flush()

			for {
				select {
				case <-req.Context().Done():
					return
				case ev, open := <-ch:
					if !open {
						return
					}
					data, err := json.Marshal(ev)
					if err != nil {
						continue
					}
					fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Topic, data)
					flusher.Flush()
				}
			}
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
