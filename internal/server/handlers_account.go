package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/folio/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	templateRegister = "register.html"
	templateProfile  = "profile.html"
)

func (h *httpHandler) handleLogin(c *gin.Context) {
	user, err := h.accounts.Authenticate(c.Request.Context(), c.PostForm("nickName"), c.PostForm("password"))
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusBadRequest, gin.H{"code": codeDenied, "msg": msgInvalidCreds})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.startSession(c, user, "login success")
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.resolver.CookieName(), "", -1, "/", "", h.secureCookies, true)
	h.respondOK(c, "logged out", nil)
}

func (h *httpHandler) handleRegisterPage(c *gin.Context) {
	h.renderPage(c, http.StatusOK, templateRegister, nil)
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	user, err := h.accounts.Register(c.Request.Context(), users.RegisterInput{
		Name:            c.PostForm("nickName"),
		Password:        c.PostForm("password"),
		ConfirmPassword: c.PostForm("password2"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.startSession(c, user, "register success")
}

// startSession issues a token for user and sets it as the session cookie.
func (h *httpHandler) startSession(c *gin.Context, user users.User, message string) {
	token, _, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Int64("user_id", user.ID), zap.Error(err))
		h.respondError(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.resolver.CookieName(), token, int(h.tokens.TTL().Seconds()), "/", "", h.secureCookies, true)
	h.respondOK(c, message, gin.H{"token": token})
}

func (h *httpHandler) handleProfilePage(c *gin.Context) {
	user, err := h.accounts.Get(c.Request.Context(), principalFrom(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.renderPage(c, http.StatusOK, templateProfile, map[string]any{
		"name":   user.Name,
		"email":  user.Email,
		"avatar": user.AvatarURL,
		"level":  user.PrivilegeLevel,
	})
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	user, err := h.accounts.UpdateProfile(c.Request.Context(), *principalFrom(c), users.ProfileInput{
		Name:      c.PostForm("nickName"),
		Email:     c.PostForm("email"),
		AvatarURL: c.PostForm("avatar"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOK(c, "profile updated", gin.H{"name": user.Name})
}
