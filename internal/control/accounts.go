package control

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/iamOgunyinka/binance-monitor/pkg/db"
)

type createAccountRequest struct {
	Alias     string `json:"alias"`
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	TgGroup   string `json:"tg_group"`
}

// createAccount registers (or updates, by alias) an account. The secret is
// encrypted before it ever reaches the authoritative table; C5 picks up
// the row on its next 10-second tick.
func (s *Server) createAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	req.Alias = strings.TrimSpace(req.Alias)
	if req.Alias == "" || req.APIKey == "" || req.SecretKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "alias, api_key and secret_key are required"})
		return
	}

	encrypted, err := s.Keys.Encrypt(req.SecretKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encrypt secret key"})
		return
	}

	host := db.Host{
		Alias: req.Alias, APIKey: req.APIKey,
		SecretKeyEncrypted: encrypted, SecretKeyVersion: s.Keys.CurrentVersion(),
		TgGroup: req.TgGroup,
	}
	if err := s.DB.UpsertHost(c.Request.Context(), host); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"alias": req.Alias})
}

// deleteAccount removes an account; C5 observes the removal on its next
// tick and C6 tears down the matching stream.
func (s *Server) deleteAccount(c *gin.Context) {
	alias := c.Param("alias")
	if err := s.DB.DeleteHost(c.Request.Context(), alias); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alias": alias})
}
