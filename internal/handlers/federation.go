package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quillsign/federate/internal/auth"
	"github.com/quillsign/federate/internal/federation"
	"github.com/quillsign/federate/internal/models"
	"github.com/quillsign/federate/internal/notify"
	"github.com/quillsign/federate/internal/services"
	appErrors "github.com/quillsign/federate/pkg/errors"
	"github.com/quillsign/federate/pkg/metrics"
	"github.com/quillsign/federate/pkg/response"
	appValidator "github.com/quillsign/federate/pkg/validator"
)

// FederationHandler orchestrates the partner federation flow: one-time token
// issuance and exchange, silent authorization, verification, and member
// removal. Every partner-facing operation is gated by the shared secret.
type FederationHandler struct {
	secrets  *federation.SecretValidator
	tokens   federation.TokenStore
	identity *services.IdentityService
	tenants  *services.ProvisioningService
	creds    *services.CredentialService
	sessions auth.SessionIssuer
	notifier *notify.PartnerNotifier

	exchangePath string
}

// NewFederationHandler wires the federation flow's collaborators.
func NewFederationHandler(
	secrets *federation.SecretValidator,
	tokens federation.TokenStore,
	identity *services.IdentityService,
	tenants *services.ProvisioningService,
	creds *services.CredentialService,
	sessions auth.SessionIssuer,
	notifier *notify.PartnerNotifier,
	exchangePath string,
) (*FederationHandler, error) {
	if secrets == nil || tokens == nil || identity == nil || tenants == nil || creds == nil || sessions == nil {
		return nil, errors.New("federation handler: all collaborators are required")
	}
	if exchangePath == "" {
		exchangePath = "/auth/external"
	}
	return &FederationHandler{
		secrets:      secrets,
		tokens:       tokens,
		identity:     identity,
		tenants:      tenants,
		creds:        creds,
		sessions:     sessions,
		notifier:     notifier,
		exchangePath: exchangePath,
	}, nil
}

type generateTokenRequest struct {
	Email          string `json:"email" validate:"required,email"`
	Name           string `json:"name" validate:"required"`
	BusinessID     string `json:"businessId" validate:"required"`
	BusinessName   string `json:"businessName" validate:"required"`
	Role           string `json:"role" validate:"omitempty,oneof=ADMIN MANAGER MEMBER"`
	ExternalSecret string `json:"externalSecret"`
}

// POST /api/federation/generate-token
func (h *FederationHandler) GenerateToken(c *gin.Context) {
	var req generateTokenRequest
	if !bindWithSecret(c, h.secrets, &req, func() string { return req.ExternalSecret }) {
		return
	}

	token, err := h.tokens.Issue(c.Request.Context(), federation.PendingClaim{
		Email:        req.Email,
		Name:         req.Name,
		BusinessID:   req.BusinessID,
		BusinessName: req.BusinessName,
		Role:         req.Role,
	})
	if err != nil {
		response.Error(c, appErrors.Wrap(err, "failed to issue token"))
		return
	}

	metrics.FederationTokensIssued.Inc()

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"token":       token,
		"redirectUrl": fmt.Sprintf("%s?token=%s", h.exchangePath, token),
	})
}

type exchangeTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// POST /api/federation/exchange-token
func (h *FederationHandler) ExchangeToken(c *gin.Context) {
	var req exchangeTokenRequest
	if !bindAndValidate(c, &req) {
		return
	}

	claim, err := h.tokens.Exchange(c.Request.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		metrics.FederationExchanges.WithLabelValues("invalid").Inc()
		response.Error(c, appErrors.ErrTokenInvalidOrExpired)
		return
	}

	payload, err := h.completeFederation(c, claim)
	if err != nil {
		metrics.FederationExchanges.WithLabelValues("invalid").Inc()
		response.Error(c, err)
		return
	}

	metrics.FederationExchanges.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, payload)
}

type authorizeRequest struct {
	Email          string `json:"email" validate:"required,email"`
	Name           string `json:"name" validate:"required"`
	ExternalSecret string `json:"externalSecret"`
}

// POST /api/federation/authorize
func (h *FederationHandler) Authorize(c *gin.Context) {
	var req authorizeRequest
	if !bindWithSecret(c, h.secrets, &req, func() string { return req.ExternalSecret }) {
		return
	}

	user, err := h.identity.Resolve(c.Request.Context(), req.Email, req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}

	pair, _, err := h.sessions.CreateSession(user.ID, auth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, appErrors.Wrap(err, "failed to create session"))
		return
	}

	_ = h.identity.TouchLogin(c.Request.Context(), user.ID)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    userPayload(user),
		"tokens":  pair,
	})
}

type authorizeBusinessRequest struct {
	Email          string `json:"email" validate:"required,email"`
	Name           string `json:"name" validate:"required"`
	BusinessID     string `json:"businessId" validate:"required"`
	BusinessName   string `json:"businessName" validate:"required"`
	Role           string `json:"role" validate:"omitempty,oneof=ADMIN MANAGER MEMBER"`
	ExternalSecret string `json:"externalSecret"`
}

// POST /api/federation/authorize-business
func (h *FederationHandler) AuthorizeBusiness(c *gin.Context) {
	var req authorizeBusinessRequest
	if !bindWithSecret(c, h.secrets, &req, func() string { return req.ExternalSecret }) {
		return
	}

	payload, err := h.completeFederation(c, federation.PendingClaim{
		Email:        req.Email,
		Name:         req.Name,
		BusinessID:   req.BusinessID,
		BusinessName: req.BusinessName,
		Role:         req.Role,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, payload)
}

type verifyRequest struct {
	Email          string `json:"email" validate:"required,email"`
	ExternalSecret string `json:"externalSecret"`
}

// POST /api/federation/verify
func (h *FederationHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if !bindWithSecret(c, h.secrets, &req, func() string { return req.ExternalSecret }) {
		return
	}

	user, err := h.identity.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusOK, gin.H{"exists": false})
			return
		}
		response.Error(c, err)
		return
	}

	organisations := make([]gin.H, 0, len(user.Memberships))
	for _, membership := range user.Memberships {
		if membership.Organization == nil {
			continue
		}
		org := gin.H{
			"id":   membership.Organization.ID,
			"slug": membership.Organization.Slug,
			"name": membership.Organization.Name,
		}
		if membership.RoleGroup != nil {
			org["role"] = membership.RoleGroup.Kind
		}
		teams := make([]gin.H, 0, len(membership.Organization.Teams))
		for _, team := range membership.Organization.Teams {
			teams = append(teams, gin.H{"id": team.ID, "name": team.Name})
		}
		org["teams"] = teams
		organisations = append(organisations, org)
	}

	c.JSON(http.StatusOK, gin.H{
		"exists": true,
		"user": gin.H{
			"id":            user.ID,
			"email":         user.Email,
			"name":          user.Name,
			"organisations": organisations,
		},
	})
}

type removeMemberRequest struct {
	Email          string `json:"email" validate:"required,email"`
	BusinessID     string `json:"businessId" validate:"required"`
	ExternalSecret string `json:"externalSecret"`
}

// POST /api/federation/remove-member
func (h *FederationHandler) RemoveMember(c *gin.Context) {
	var req removeMemberRequest
	if !bindWithSecret(c, h.secrets, &req, func() string { return req.ExternalSecret }) {
		return
	}

	message, err := h.tenants.RemoveMember(c.Request.Context(), req.Email, req.BusinessID)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, "failed to remove member"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
	})
}

// completeFederation resolves the identity, provisions the tenant when a
// business is present, issues the session, and kicks off the best-effort
// partner notification for freshly minted credentials.
func (h *FederationHandler) completeFederation(c *gin.Context, claim federation.PendingClaim) (gin.H, error) {
	ctx := c.Request.Context()

	user, err := h.identity.Resolve(ctx, claim.Email, claim.Name)
	if err != nil {
		return nil, err
	}

	payload := gin.H{
		"success":     true,
		"user":        userPayload(user),
		"redirectUrl": "/documents",
	}

	if claim.BusinessID != "" {
		org, team, err := h.tenants.Provision(ctx, user, claim.BusinessID, claim.BusinessName, claim.Role)
		if err != nil {
			return nil, appErrors.Wrap(err, "failed to provision tenant")
		}

		result, err := h.creds.EnsureForTeam(ctx, team, user.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, "failed to ensure service credential")
		}
		if result.Created && h.notifier != nil {
			// Fire-and-forget: the exchange response never waits on the partner.
			go h.notifier.NotifyCredential(context.Background(), claim.BusinessID, result.Plaintext)
		}

		payload["organisation"] = gin.H{"id": org.ID, "slug": org.Slug, "name": org.Name}
		payload["team"] = gin.H{"id": team.ID, "name": team.Name}
		payload["documentsUrl"] = fmt.Sprintf("/orgs/%s/documents", org.Slug)
	}

	pair, _, err := h.sessions.CreateSession(user.ID, auth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to create session")
	}
	payload["tokens"] = pair

	_ = h.identity.TouchLogin(ctx, user.ID)

	return payload, nil
}

// bindWithSecret binds the JSON body, checks the shared secret before any
// field validation, then validates the remaining fields.
func bindWithSecret[T any](c *gin.Context, secrets *federation.SecretValidator, dest *T, secret func() string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := secrets.Validate(secret()); err != nil {
		response.Error(c, err)
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return false
	}

	return true
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	}
}
