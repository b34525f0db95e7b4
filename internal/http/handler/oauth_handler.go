package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentigee/relay-auth/internal/config"
	"github.com/sentigee/relay-auth/internal/domain/oauth"
	"github.com/sentigee/relay-auth/internal/repository"
	"github.com/sentigee/relay-auth/internal/service"
)

// SessionCookieName identifies the browser session used to stash the
// pending authorization URL.
const SessionCookieName = "relay_session"

// OAuthHandler exposes the token acquisition flow over HTTP. Requests that
// declare application/json get JSON bodies; everything else gets redirects
// with flash-style query parameters, matching the browser-form usage.
type OAuthHandler struct {
	Flow     *service.Flow
	Sessions repository.SessionStore
	Cfg      config.Config
	Logger   *zap.Logger
}

// NewOAuthHandler creates the handler set.
func NewOAuthHandler(flow *service.Flow, sessions repository.SessionStore, cfg config.Config, logger *zap.Logger) *OAuthHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &OAuthHandler{Flow: flow, Sessions: sessions, Cfg: cfg, Logger: logger}
}

// InitiateOAuth merges submitted mailbox options and hands the user the
// provider authorization URL, as JSON or as a 302.
func (h *OAuthHandler) InitiateOAuth(c *gin.Context) {
	var opts oauth.MailboxOptions
	if err := c.ShouldBind(&opts); err != nil {
		h.Logger.Warn("bind mailbox options", zap.Error(err))
		// Malformed bodies fall through to the defaults, like an empty form.
		opts = oauth.MailboxOptions{}
	}

	authURL, err := h.Flow.InitiateAuthorization(c.Request.Context(), opts)
	if err != nil {
		h.Logger.Error("initiate oauth", zap.Error(err))
		if wantsJSON(c) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		h.redirectFlash(c, "Error initiating OAuth: "+err.Error(), "error")
		return
	}

	h.stashAuthURL(c, authURL)

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"auth_url": authURL})
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// Callback handles the provider redirect and always sends the user back to
// the landing page with the outcome attached.
func (h *OAuthHandler) Callback(c *gin.Context) {
	result := h.Flow.HandleCallback(c.Request.Context(), service.CallbackInput{
		Code:             c.Query("code"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	})

	landing := url.URL{Path: h.Cfg.LandingPath}
	q := landing.Query()
	if result.Success {
		q.Set("success", "true")
		if sessionID, err := c.Cookie(SessionCookieName); err == nil && sessionID != "" {
			_ = h.Sessions.DeleteAuthURL(c.Request.Context(), sessionID)
		}
	} else {
		q.Set("error", result.ErrorCode)
		q.Set("error_description", result.ErrorDescription)
	}
	landing.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, landing.String())
}

// RevokeToken deletes the persisted credential bundle.
func (h *OAuthHandler) RevokeToken(c *gin.Context) {
	if err := h.Flow.RevokeToken(c.Request.Context()); err != nil {
		if wantsJSON(c) {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		h.redirectFlash(c, "Error revoking token: "+err.Error(), "error")
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Token revoked successfully"})
		return
	}
	h.redirectFlash(c, "Token revoked successfully", "success")
}

// TokenStatus reports whether the relay is authenticated.
func (h *OAuthHandler) TokenStatus(c *gin.Context) {
	status, err := h.Flow.TokenStatus(c.Request.Context())
	if err != nil {
		h.Logger.Error("token status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// AuthURL returns the session-stashed authorization URL for AJAX callers
// that initiated via a form post.
func (h *OAuthHandler) AuthURL(c *gin.Context) {
	sessionID, err := c.Cookie(SessionCookieName)
	if err != nil || sessionID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	authURL, err := h.Sessions.GetAuthURL(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, oauth.ErrNoPendingAuthorization) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.Logger.Error("load stashed auth url", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"auth_url": authURL})
}

func (h *OAuthHandler) stashAuthURL(c *gin.Context, authURL string) {
	sessionID, err := c.Cookie(SessionCookieName)
	if err != nil || sessionID == "" {
		sessionID = uuid.NewString()
		c.SetCookie(SessionCookieName, sessionID, int(h.Cfg.SessionTTL.Seconds()), "/", "", c.Request.TLS != nil, true)
	}
	if err := h.Sessions.SaveAuthURL(c.Request.Context(), sessionID, authURL, h.Cfg.SessionTTL); err != nil {
		// The stash only serves AJAX retrieval; the URL was already returned.
		h.Logger.Warn("stash auth url", zap.Error(err))
	}
}

func (h *OAuthHandler) redirectFlash(c *gin.Context, message, level string) {
	landing := url.URL{Path: h.Cfg.LandingPath}
	q := landing.Query()
	q.Set("flash", message)
	q.Set("flash_level", level)
	landing.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, landing.String())
}

func wantsJSON(c *gin.Context) bool {
	return c.ContentType() == "application/json"
}
