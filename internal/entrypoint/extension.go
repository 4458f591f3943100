package entrypoint

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"stagectl/internal/config"
	"stagectl/pkg/logging"
)

// Extension attaches to a running service and stays up until stopped.
type Extension struct {
	ServiceURL string
	Interval   time.Duration
	client     *http.Client
}

// NewExtension creates an extension that registers with the service at serviceURL.
func NewExtension(serviceURL string, interval time.Duration) *Extension {
	if interval <= 0 {
		interval = config.DefaultProbeInterval
	}
	return &Extension{
		ServiceURL: strings.TrimRight(serviceURL, "/"),
		Interval:   interval,
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

// Register polls the service's /hello endpoint until it answers or ctx is done.
func (e *Extension) Register(ctx context.Context) (string, error) {
	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		greeting, err := e.hello(ctx)
		if err == nil {
			return greeting, nil
		}
		if attempts == 1 || attempts%10 == 0 {
			logging.Debug(subsystem, "Service at %s not reachable yet (attempt %d): %v", e.ServiceURL, attempts, err)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("registration with %s abandoned after %d attempts: %w", e.ServiceURL, attempts, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (e *Extension) hello(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.ServiceURL+"/hello", nil)
	if err != nil {
		return "", err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	return strings.TrimSpace(string(body)), nil
}

// RunExtension is the stagectl.extension entry point.
func RunExtension(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet(config.EntryPointExtension, pflag.ContinueOnError)
	serviceURL := flags.String("service-url", fmt.Sprintf("http://localhost:%d", config.DefaultServicePort), "Base URL of the service to attach to")
	interval := flags.Duration("interval", config.DefaultProbeInterval, "Delay between registration attempts")
	if err := flags.Parse(args); err != nil {
		return err
	}

	ext := NewExtension(*serviceURL, *interval)
	greeting, err := ext.Register(ctx)
	if err != nil {
		// Being stopped before the service answered is a normal shutdown.
		logging.Warn(subsystem, "Extension stopped unregistered: %v", err)
		return nil
	}
	logging.Info(subsystem, "Extension registered with %s (%s)", ext.ServiceURL, greeting)

	<-ctx.Done()
	logging.Info(subsystem, "Extension stopped")
	return nil
}
