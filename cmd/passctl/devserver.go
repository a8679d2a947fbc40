package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"batterypass/internal/contentstore"
	"batterypass/internal/directory/directorytest"
	"batterypass/internal/platform/health"
	"batterypass/internal/platform/logger"
	"batterypass/pkg/domain"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run local directory and content store backends",
	Long: `Run in-memory implementations of the directory and the content pinning
service behind real HTTP, for local development against a local chain node.

Point passctl at it with:

  BATTERYPASS_DIRECTORY_URL=http://localhost:8585/directory
  BATTERYPASS_PINNING_URL=http://localhost:8585/pin
  BATTERYPASS_GATEWAY_URL=http://localhost:8585/content/%s`,
	RunE: runDevserver,
}

var (
	addrFlag   string
	jwtKeyFlag string
)

func init() {
	rootCmd.AddCommand(devserverCmd)

	devserverCmd.Flags().StringVar(&addrFlag, "addr", ":8585", "listen address")
	devserverCmd.Flags().StringVar(&jwtKeyFlag, "jwt-key", "", "require bearer tokens signed with this key")
}

func runDevserver(cmd *cobra.Command, args []string) error {
	log := logger.New()

	var dirOpts []directorytest.Option
	if jwtKeyFlag != "" {
		dirOpts = append(dirOpts, directorytest.WithJWTKey([]byte(jwtKeyFlag)))
	}
	fake := directorytest.New(dirOpts...)
	store := contentstore.NewInMemoryStore()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Mount("/directory", fake.Handler())
	r.Post("/pin", pinHandler(store))
	r.Get("/content/{id}", gatewayHandler(store))
	r.Handle("/metrics", promhttp.Handler())
	health.New(Version).Register(r)

	srv := &http.Server{
		Addr:              addrFlag,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("devserver listening", "addr", addrFlag)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("devserver shutting down")
	return srv.Shutdown(shutdownCtx)
}

func pinHandler(store *contentstore.InMemoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}
		id, err := store.Upload(r.Context(), payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"hash": string(id)})
	}
}

func gatewayHandler(store *contentstore.InMemoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := store.Fetch(r.Context(), domain.ContentID(chi.URLParam(r, "id")))
		if err != nil {
			http.Error(w, fmt.Sprintf("content not found: %v", err), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(raw)
	}
}
