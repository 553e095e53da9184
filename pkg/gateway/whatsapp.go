package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mercator-hq/foreman/pkg/messages"
)

// WhatsApp is the bridge adapter: outbound messages are POSTed to a local
// WhatsApp gateway process. Inbound flow is not implemented; the bridge has
// no webhook surface yet, so Start only parks until stopped.
type WhatsApp struct {
	gatewayURL string
	client     *http.Client
	logger     *slog.Logger
	stop       chan struct{}
}

// NewWhatsApp creates the adapter against the given bridge gateway URL.
func NewWhatsApp(gatewayURL string, logger *slog.Logger) *WhatsApp {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsApp{
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		stop:       make(chan struct{}),
	}
}

// Name returns the channel identifier.
func (w *WhatsApp) Name() string { return messages.ChannelWhatsApp.String() }

// Start parks until Stop or context cancellation. The bridge delivers
// nothing inbound.
func (w *WhatsApp) Start(ctx context.Context) error {
	w.logger.Info("whatsapp adapter started (outbound only)", "gateway", w.gatewayURL)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stop:
		return nil
	}
}

// Stop terminates Start.
func (w *WhatsApp) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
}

// Send posts one message to the bridge. Markdown is stripped; WhatsApp's
// bridge carries plain text only.
func (w *WhatsApp) Send(ctx context.Context, out messages.OutboundMessage) error {
	payload, err := json.Marshal(map[string]string{
		"to":   out.UserID,
		"text": stripMarkdown(out.Text),
	})
	if err != nil {
		return fmt.Errorf("encoding whatsapp message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.gatewayURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp gateway unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp gateway rejected message: status %d", resp.StatusCode)
	}
	return nil
}
