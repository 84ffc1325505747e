package server

import (
	"net/http"
	"strings"

	"trading-relay/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *RelayServer) setupRoutes() {
	api := s.engine.Group("/api")

	api.GET("/status", s.getStatus)
	api.POST("/toggle", s.postToggle)

	api.GET("/accounts", s.getAccounts)
	api.POST("/accounts/add", s.postAddAccount)
	api.POST("/accounts/select", s.postSelectAccount)

	api.GET("/logs", s.getLogs)
	api.GET("/settings", s.getSettings)
	api.POST("/settings", s.postSettings)

	api.POST("/trade", s.postTrade)
	api.POST("/trade/close", s.postClose)

	api.GET("/market/symbols", s.getSymbols)
	api.GET("/market/positions", s.getPositions)

	api.GET("/health", s.getHealth)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *RelayServer) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.gw.Status())
}

// -----------------------------------------------------------------------------

type toggleBody struct {
	Command string `json:"command"`
}

func (s *RelayServer) postToggle(c *gin.Context) {
	var body toggleBody
	if !bindJSON(c, &body) {
		return
	}
	running, err := s.gw.Toggle(c.Request.Context(), body.Command)
	if err != nil {
		respondError(c, err, gin.H{"isRunning": running})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "isRunning": running})
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getAccounts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"accounts": s.gw.Accounts()})
}

type addAccountBody struct {
	Token string `json:"token"`
	AppID string `json:"appId"`
	Label string `json:"label"`
}

func (s *RelayServer) postAddAccount(c *gin.Context) {
	var body addAccountBody
	if !bindJSON(c, &body) {
		return
	}
	summary, err := s.gw.AddAccount(body.Token, body.AppID, body.Label)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "account": summary})
}

func (s *RelayServer) postSelectAccount(c *gin.Context) {
	id := c.Query("accountId")
	if err := s.gw.SelectAccount(id); err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "accountId": id})
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getLogs(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.gw.Logs(limit))
}

func (s *RelayServer) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.gw.Settings())
}

func (s *RelayServer) postSettings(c *gin.Context) {
	var patch models.MSettingsPatch
	if !bindJSON(c, &patch) {
		return
	}
	next, err := s.gw.UpdateSettings(patch)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, next)
}

// -----------------------------------------------------------------------------

func (s *RelayServer) postTrade(c *gin.Context) {
	var req models.MTradeRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.gw.PlaceTrade(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

type closeBody struct {
	ContractID int64 `json:"contract_id"`
}

func (s *RelayServer) postClose(c *gin.Context) {
	var body closeBody
	if !bindJSON(c, &body) {
		return
	}
	res, err := s.gw.ClosePosition(c.Request.Context(), body.ContractID)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getSymbols(c *gin.Context) {
	list, err := s.gw.Symbols(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	if market := strings.TrimSpace(c.Query("market")); market != "" {
		filtered := list[:0:0]
		for _, sym := range list {
			if strings.EqualFold(sym.Market, market) {
				filtered = append(filtered, sym)
			}
		}
		list = filtered
	}
	c.JSON(http.StatusOK, list)
}

func (s *RelayServer) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, s.gw.Positions())
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getHealth(c *gin.Context) {
	var latest int64
	if tick, ok := s.store.LatestTick(); ok {
		latest = tick.Epoch
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": s.hub.Count(),
		"state":       s.link.State(),
		"latest_tick": latest,
	})
}
