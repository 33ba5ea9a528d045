package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quillsign/federate/pkg/crypto"
	"github.com/quillsign/federate/pkg/logger"
	"github.com/quillsign/federate/pkg/metrics"
)

// DefaultTimeout bounds a single webhook delivery so partner availability
// never stalls the user-facing exchange response.
const DefaultTimeout = 5 * time.Second

const signatureHeader = "x-signature"

// PartnerConfig holds the outbound webhook settings.
type PartnerConfig struct {
	WebhookBaseURL string
	SigningSecret  string
	Timeout        time.Duration
}

// credentialPayload is the exact body signed and delivered to the partner.
type credentialPayload struct {
	BusinessID string `json:"businessId"`
	APIToken   string `json:"apiToken"`
}

// PartnerNotifier delivers signed webhooks to the partner platform on a
// best-effort basis. Failures are logged and swallowed; there is no retry.
type PartnerNotifier struct {
	baseURL string
	secret  string
	client  *http.Client
	log     *zap.Logger
}

// NewPartnerNotifier builds a notifier from configuration. Missing base URL
// or secret yields a notifier that skips every delivery (logged).
func NewPartnerNotifier(cfg PartnerConfig) *PartnerNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PartnerNotifier{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.WebhookBaseURL), "/"),
		secret:  strings.TrimSpace(cfg.SigningSecret),
		client:  &http.Client{Timeout: timeout},
		log:     logger.WithModule("notify"),
	}
}

// NotifyCredential tells the partner system a new service credential was
// minted for a tenant. Always best-effort: the caller never observes failure.
func (n *PartnerNotifier) NotifyCredential(ctx context.Context, businessID, apiToken string) {
	if n == nil {
		return
	}
	if n.baseURL == "" || n.secret == "" {
		metrics.WebhookDeliveries.WithLabelValues("skipped").Inc()
		n.log.Info("partner webhook not configured, skipping delivery",
			zap.String("business_id", businessID),
		)
		return
	}

	if err := n.deliver(ctx, businessID, apiToken); err != nil {
		metrics.WebhookDeliveries.WithLabelValues("failure").Inc()
		n.log.Warn("partner webhook delivery failed",
			zap.String("business_id", businessID),
			zap.Error(err),
		)
		return
	}

	metrics.WebhookDeliveries.WithLabelValues("success").Inc()
	n.log.Info("partner webhook delivered", zap.String("business_id", businessID))
}

func (n *PartnerNotifier) deliver(ctx context.Context, businessID, apiToken string) error {
	body, err := json.Marshal(credentialPayload{
		BusinessID: businessID,
		APIToken:   apiToken,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/store-api-key/%s", n.baseURL, url.PathEscape(businessID))

	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, crypto.SignHMAC([]byte(n.secret), body))

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("partner responded %d", resp.StatusCode)
	}

	return nil
}
