package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"stagectl/internal/config"
	"stagectl/internal/transport"
	"stagectl/pkg/logging"
)

// Service is the built-in long-running process. It answers on /hello,
// /_cluster/settings and /healthz.
type Service struct {
	ClusterName string
	started     time.Time
}

// NewService creates a service reporting clusterName in its settings.
func NewService(clusterName string) *Service {
	return &Service{ClusterName: clusterName, started: time.Now()}
}

// Handler returns the service's HTTP routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/hello", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "hello from %s\n", config.EntryPointService)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(s.started).Round(time.Second))
	})
	mux.HandleFunc("/_cluster/settings", s.handleSettings)
	return mux
}

func (s *Service) handleSettings(w http.ResponseWriter, _ *http.Request) {
	settings := map[string]string{
		"cluster.name": s.ClusterName,
		"process.pid":  strconv.Itoa(os.Getpid()),
	}
	if host, err := os.Hostname(); err == nil {
		settings["node.name"] = host
	}
	if wd, err := os.Getwd(); err == nil {
		settings["module.path"] = wd
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := (transport.ClusterSettingsResponse{Settings: settings}).WriteTo(w); err != nil {
		logging.Debug(subsystem, "Writing settings response: %v", err)
	}
}

// Serve listens on l until ctx is done.
func (s *Service) Serve(ctx context.Context, l net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(l) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("service shutdown: %w", err)
		}
		return nil
	}
}

// RunService is the stagectl.service entry point.
func RunService(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet(config.EntryPointService, pflag.ContinueOnError)
	port := flags.Int("port", config.DefaultServicePort, "Port to listen on")
	host := flags.String("host", "localhost", "Address to bind")
	clusterName := flags.String("cluster-name", "stagectl", "Cluster name reported in settings")
	if err := flags.Parse(args); err != nil {
		return err
	}

	addr := net.JoinHostPort(*host, strconv.Itoa(*port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	logging.Info(subsystem, "Service listening on %s", l.Addr())
	err = NewService(*clusterName).Serve(ctx, l)
	logging.Info(subsystem, "Service stopped")
	return err
}
