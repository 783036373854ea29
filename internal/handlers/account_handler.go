package handlers

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/bridge"
	"github.com/Ramsey-B/fern/pkg/models"
)

// AccountHandler exposes account bridge lifecycle and messaging operations
// on the admin API.
type AccountHandler struct {
	registry *bridge.Registry
	accounts map[string]models.Account
	logger   ectologger.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(registry *bridge.Registry, accounts map[string]models.Account, logger ectologger.Logger) *AccountHandler {
	return &AccountHandler{
		registry: registry,
		accounts: accounts,
		logger:   logger,
	}
}

// RegisterRoutes registers account routes
func (h *AccountHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/accounts", h.ListAccounts)
	g.GET("/accounts/:account_id/status", h.GetStatus)
	g.POST("/accounts/:account_id/start", h.StartAccount)
	g.POST("/accounts/:account_id/stop", h.StopAccount)
	g.POST("/accounts/:account_id/subscriptions", h.Subscribe)
	g.DELETE("/accounts/:account_id/subscriptions", h.Unsubscribe)
	g.POST("/accounts/:account_id/messages", h.SendMessage)
}

type accountSummary struct {
	AccountID string                `json:"account_id"`
	Enabled   bool                  `json:"enabled"`
	PodIDs    []string              `json:"pod_ids,omitempty"`
	Status    *models.AccountStatus `json:"status,omitempty"`
}

// ListAccounts returns every configured account with its bridge status when
// the bridge is running.
func (h *AccountHandler) ListAccounts(c echo.Context) error {
	summaries := make([]accountSummary, 0, len(h.accounts))
	for id, account := range h.accounts {
		summary := accountSummary{
			AccountID: id,
			Enabled:   account.Enabled,
			PodIDs:    account.PodIDs,
		}
		if adapter, exists := h.registry.Get(id); exists {
			status := adapter.Status()
			summary.Status = &status
		}
		summaries = append(summaries, summary)
	}

	return c.JSON(http.StatusOK, summaries)
}

// GetStatus returns the bridge status for one account
func (h *AccountHandler) GetStatus(c echo.Context) error {
	accountID := c.Param("account_id")

	adapter, exists := h.registry.Get(accountID)
	if !exists {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "account bridge is not running",
		})
	}

	return c.JSON(http.StatusOK, adapter.Status())
}

// StartAccount starts the bridge for a configured account
func (h *AccountHandler) StartAccount(c echo.Context) error {
	ctx := c.Request().Context()
	accountID := c.Param("account_id")

	account, exists := h.accounts[accountID]
	if !exists {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "unknown account",
		})
	}

	if err := h.registry.StartAccount(ctx, account); err != nil {
		h.logger.WithContext(ctx).WithError(err).Errorf("Failed to start account %s", accountID)
		return c.JSON(http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
	}

	h.logger.WithContext(ctx).Infof("Started bridge for account %s", accountID)
	return c.JSON(http.StatusOK, map[string]string{
		"message":    "bridge started",
		"account_id": accountID,
	})
}

// StopAccount stops the bridge for an account. Stopping an account that is
// not running succeeds.
func (h *AccountHandler) StopAccount(c echo.Context) error {
	ctx := c.Request().Context()
	accountID := c.Param("account_id")

	h.registry.StopAccount(ctx, accountID)

	h.logger.WithContext(ctx).Infof("Stopped bridge for account %s", accountID)
	return c.JSON(http.StatusOK, map[string]string{
		"message":    "bridge stopped",
		"account_id": accountID,
	})
}

type subscriptionRequest struct {
	PodIDs []string `json:"pod_ids"`
}

// Subscribe adds pods to a running account's subscription set
func (h *AccountHandler) Subscribe(c echo.Context) error {
	ctx := c.Request().Context()
	accountID := c.Param("account_id")

	adapter, exists := h.registry.Get(accountID)
	if !exists {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "account bridge is not running",
		})
	}

	var req subscriptionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	if err := adapter.SubscribePods(req.PodIDs); err != nil {
		h.logger.WithContext(ctx).WithError(err).Errorf("Failed to subscribe pods for account %s", accountID)
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "subscribed",
		"pod_ids": req.PodIDs,
	})
}

// Unsubscribe removes pods from a running account's subscription set
func (h *AccountHandler) Unsubscribe(c echo.Context) error {
	ctx := c.Request().Context()
	accountID := c.Param("account_id")

	adapter, exists := h.registry.Get(accountID)
	if !exists {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "account bridge is not running",
		})
	}

	var req subscriptionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	if err := adapter.UnsubscribePods(req.PodIDs); err != nil {
		h.logger.WithContext(ctx).WithError(err).Errorf("Failed to unsubscribe pods for account %s", accountID)
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "unsubscribed",
		"pod_ids": req.PodIDs,
	})
}

type sendMessageRequest struct {
	To       string `json:"to" validate:"required"`
	Text     string `json:"text"`
	MediaURL string `json:"media_url"`
}

// SendMessage posts a message to a pod through a running account bridge,
// outside any event cycle.
func (h *AccountHandler) SendMessage(c echo.Context) error {
	ctx := c.Request().Context()
	accountID := c.Param("account_id")

	adapter, exists := h.registry.Get(accountID)
	if !exists {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "account bridge is not running",
		})
	}

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	messageID, err := adapter.SendMessage(ctx, req.To, req.Text, req.MediaURL)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Errorf("Failed to send message for account %s", accountID)
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message_id": messageID,
	})
}
