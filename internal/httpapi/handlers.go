package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"crm-dialer/internal/auth"
	"crm-dialer/internal/calls"
	"crm-dialer/internal/rbac"
	"crm-dialer/internal/reporting"
	"crm-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallRecords is what the call endpoints need from internal/calls.
// *calls.Synchronizer plus a calls.Repository satisfy it through Records.
type CallRecords interface {
	Create(ctx context.Context, nc calls.NewCall) (calls.Call, error)
	Link(ctx context.Context, callID, providerCallID string) error
}

// CredentialAudit records who minted realtime credentials. Optional.
type CredentialAudit interface {
	LogCredentialIssued(ctx context.Context, actorUserID, ip, subject string) error
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth        *auth.Manager
	Calls       CallRecords
	Records     calls.Repository
	Credentials *auth.RealtimeIssuer
	Reports     *reporting.Service
	Audit       CredentialAudit

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Auth ---

type loginRequest struct {
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id"`
	Role      string `json:"role"`
}

// DevLogin issues a token pair without checking credentials. Only routed
// outside production, for local softphone runs.
func (h Handlers) DevLogin(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.ProjectID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, project_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), req.UserID, req.ProjectID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// --- Calls ---

type createCallRequest struct {
	ID        string `json:"id"`
	ContactID string `json:"contact_id"`
	ProjectID string `json:"project_id"`
	To        string `json:"to"`
	From      string `json:"from"`
}

func (h Handlers) CreateCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	projectID, _ := auth.ProjectID(c.Request.Context())

	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ProjectID != "" && req.ProjectID != projectID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "project mismatch"})
		return
	}
	if strings.TrimSpace(req.To) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to required"})
		return
	}

	call, err := h.Calls.Create(c.Request.Context(), calls.NewCall{
		CallID:    req.ID,
		ContactID: req.ContactID,
		ProjectID: projectID,
		To:        req.To,
		From:      req.From,
	})
	if err != nil {
		if errors.Is(err, calls.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid call"})
			return
		}
		logger.FromGin(c).Error("call record create failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call record create failed"})
		return
	}
	c.JSON(http.StatusCreated, call)
}

type linkRequest struct {
	ProviderCallID string `json:"provider_call_id"`
}

// LinkProviderCall stores the provider call id. Parked webhook deliveries for
// that id are replayed by the synchronizer; a replay failure is logged, not
// returned, because the link itself is stored.
func (h Handlers) LinkProviderCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	callID := c.Param("call_id")
	if _, ok := h.ownedCall(c, callID); !ok {
		return
	}

	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ProviderCallID) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "provider_call_id required"})
		return
	}
	pid := strings.TrimSpace(req.ProviderCallID)

	log := logger.FromGin(c).With("call_id", callID, "provider_call_id", pid)
	if err := h.Calls.Link(c.Request.Context(), callID, pid); err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		log.Error("provider call link failed", "err", err)
		// Link is written before replay; only a replay failure gets here with the record linked.
		if rec, gerr := h.Records.Get(c.Request.Context(), callID); gerr == nil && rec.ProviderCallID != nil && *rec.ProviderCallID == pid {
			c.Status(http.StatusNoContent)
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "link failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) GetCall(c *gin.Context) {
	rec, ok := h.ownedCall(c, c.Param("call_id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ownedCall loads a record of the caller's project. Records of other
// projects answer 404 so ids do not leak across projects.
func (h Handlers) ownedCall(c *gin.Context, callID string) (calls.Call, bool) {
	if h.Records == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return calls.Call{}, false
	}
	projectID, _ := auth.ProjectID(c.Request.Context())
	rec, err := h.Records.Get(c.Request.Context(), callID)
	if errors.Is(err, calls.ErrNotFound) || (err == nil && rec.ProjectID != projectID) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return calls.Call{}, false
	}
	if err != nil {
		logger.FromGin(c).Error("call record lookup failed", "err", err, "call_id", callID)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return calls.Call{}, false
	}
	return rec, true
}

// --- Credentials ---

type credentialRequest struct {
	Subject string `json:"subject"`
}

// IssueCredential mints the realtime credential the softphone logs in with.
// Subject defaults to the caller; minting for someone else requires admin.
func (h Handlers) IssueCredential(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Credentials == nil {
		log.Error("realtime credential issuer not configured")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "voice credentials not configured"})
		return
	}
	userID, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())

	var req credentialRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = userID
	}
	if subject != userID && !rbac.IsAdmin(role) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	cred, err := h.Credentials.Issue(h.now(), subject)
	if err != nil {
		if errors.Is(err, auth.ErrCredentialsNotConfigured) {
			log.Error("realtime credential issuance unavailable", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "voice credentials not configured"})
			return
		}
		log.Error("realtime credential issuance failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "credential issuance failed"})
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogCredentialIssued(c.Request.Context(), userID, c.ClientIP(), subject); err != nil {
			log.Warn("credential audit append failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, cred)
}

// --- Reports ---

// CallsSummary answers GET /v1/reports/calls?from=&to= (RFC3339). The range
// defaults to the last 24 hours.
func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	projectID, _ := auth.ProjectID(c.Request.Context())

	to := h.now().UTC()
	from := to.Add(-24 * time.Hour)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		ProjectID: projectID,
		Range:     reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		logger.FromGin(c).Error("calls summary failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}
