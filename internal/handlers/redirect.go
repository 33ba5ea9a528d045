package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quillsign/federate/pkg/logger"
	"github.com/quillsign/federate/pkg/metrics"
)

// RedirectHandler serves the browser-facing half of the federation flow. The
// partner sends the user's browser to the exchange path with the one-time
// token; we consume it, establish the session, and forward to the documents
// view.
type RedirectHandler struct {
	federation *FederationHandler
	signInURL  string
}

// NewRedirectHandler builds the browser redirect endpoint.
func NewRedirectHandler(federation *FederationHandler, signInURL string) *RedirectHandler {
	if signInURL == "" {
		signInURL = "/signin"
	}
	return &RedirectHandler{federation: federation, signInURL: signInURL}
}

// GET /auth/external?token=...
func (h *RedirectHandler) External(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		c.Redirect(http.StatusFound, h.signInURL)
		return
	}

	claim, err := h.federation.tokens.Exchange(c.Request.Context(), token)
	if err != nil {
		metrics.FederationExchanges.WithLabelValues("invalid").Inc()
		c.Redirect(http.StatusFound, h.failureURL("invalid_token"))
		return
	}

	payload, err := h.federation.completeFederation(c, claim)
	if err != nil {
		metrics.FederationExchanges.WithLabelValues("invalid").Inc()
		logger.WithModule("federation").Warn("Browser token exchange failed",
			zap.String("email", claim.Email),
			zap.Error(err))
		c.Redirect(http.StatusFound, h.failureURL("exchange_failed"))
		return
	}

	metrics.FederationExchanges.WithLabelValues("success").Inc()

	destination, _ := payload["redirectUrl"].(string)
	if documentsURL, ok := payload["documentsUrl"].(string); ok && documentsURL != "" {
		destination = documentsURL
	}
	if destination == "" {
		destination = "/documents"
	}

	c.Redirect(http.StatusFound, destination)
}

func (h *RedirectHandler) failureURL(reason string) string {
	separator := "?"
	if strings.Contains(h.signInURL, "?") {
		separator = "&"
	}
	return h.signInURL + separator + "error=" + url.QueryEscape(reason)
}
