package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

// DefaultTelemetryEndpoint receives the daily telemetry ping.
const DefaultTelemetryEndpoint = "https://api.supertokens.io/0/st/telemetry"

const (
	telemetryIDKey   = "TELEMETRY_ID"
	telemetryTimeout = 10 * time.Second
)

// TelemetryStore is the storage TelemetryReporter needs.
type TelemetryStore interface {
	KeyValueRepository
	Kind() string
}

// TelemetryReporter sends an anonymous installation id and the server
// version to a telemetry endpoint.
type TelemetryReporter struct {
	store    TelemetryStore
	configs  ConfigProvider
	client   *http.Client
	endpoint string
	version  string
	now      func() time.Time
}

// TelemetryOption configures a TelemetryReporter.
type TelemetryOption func(*TelemetryReporter)

// WithTelemetryEndpoint overrides DefaultTelemetryEndpoint.
func WithTelemetryEndpoint(url string) TelemetryOption {
	return func(r *TelemetryReporter) { r.endpoint = url }
}

// WithTelemetryClient overrides the HTTP client.
func WithTelemetryClient(c *http.Client) TelemetryOption {
	return func(r *TelemetryReporter) { r.client = c }
}

// NewTelemetryReporter creates a TelemetryReporter.
func NewTelemetryReporter(store TelemetryStore, configs ConfigProvider, version string, opts ...TelemetryOption) *TelemetryReporter {
	r := &TelemetryReporter{
		store:    store,
		configs:  configs,
		endpoint: DefaultTelemetryEndpoint,
		version:  version,
		now:      time.Now,
		client: &http.Client{
			Timeout: 2 * telemetryTimeout,
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: telemetryTimeout}).DialContext,
				ResponseHeaderTimeout: telemetryTimeout,
			},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type telemetryPayload struct {
	TelemetryID        string `json:"telemetryId"`
	SuperTokensVersion string `json:"superTokensVersion"`
}

// Run sends one telemetry ping for t.
//
// Only the default tenant reports. Nothing is sent for the in-memory store
// or when telemetry is disabled. Network failures are logged and swallowed.
func (r *TelemetryReporter) Run(ctx context.Context, t domain.TenantIdentity) error {
	if !t.IsDefault() || r.store.Kind() == "memory" {
		return nil
	}
	cfg, err := r.configs.TenantConfig(t)
	if err != nil {
		return err
	}
	if cfg.TelemetryDisabled {
		return nil
	}

	id, err := r.telemetryID(ctx, t)
	if err != nil {
		return err
	}

	body, err := json.Marshal(telemetryPayload{TelemetryID: id, SuperTokensVersion: r.version})
	if err != nil {
		return err
	}

	if err := r.post(ctx, body); err != nil {
		logger.L(ctx).Warn("telemetry request failed", "endpoint", r.endpoint, "error", err)
		return nil
	}
	logger.L(ctx).Debug("telemetry sent", "telemetry_id", id)
	return nil
}

func (r *TelemetryReporter) telemetryID(ctx context.Context, t domain.TenantIdentity) (string, error) {
	kv, err := r.store.GetKeyValue(ctx, t, telemetryIDKey)
	if err == nil {
		return kv.Value, nil
	}
	if !errors.Is(err, domain.ErrKeyValueNotFound) {
		return "", domain.StorageError("get telemetry id", err)
	}

	kv, err = r.store.SetKeyValueIfAbsent(ctx, t, telemetryIDKey, &domain.KeyValue{
		Value:     uuid.NewString(),
		CreatedAt: r.now().UnixMilli(),
	})
	if err != nil {
		return "", domain.StorageError("set telemetry id", err)
	}
	return kv.Value, nil
}

func (r *TelemetryReporter) post(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*telemetryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("api-version", "2")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("telemetry endpoint returned %d", resp.StatusCode)
	}
	return nil
}
