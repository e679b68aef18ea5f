package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kerner1000/riskmanager/internal/app"
	"github.com/kerner1000/riskmanager/internal/broker"
)

func registerRoutes(group *gin.RouterGroup, facade *app.Facade) {
	group.GET("/gateway/status", handleGatewayStatus(facade))
	group.POST("/gateway/keepalive", handleKeepAlive(facade))
	group.GET("/positions", handlePositions(facade))
	group.GET("/risk", handleRisk(facade))
	group.GET("/risk/csv", handleRiskCSV(facade))
	group.POST("/stops", handleCreateMissingStops(facade))
	group.POST("/stops/:conid", handleCreateStopByConid(facade))
	group.POST("/stops/ticker/:ticker", handleCreateStopByTicker(facade))
}

func splitAccounts(c *gin.Context) []string {
	raw := strings.TrimSpace(c.Query("accounts"))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func handleGatewayStatus(facade *app.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := facade.Gateway.GetConnectionStatus(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"reachable":     status.Reachable,
			"authenticated": status.Authenticated,
			"connected":     status.Connected,
			"competing":     status.Competing,
			"message":       status.Message,
			"healthy":       facade.Health.Healthy(),
			"lastSuccess":   facade.Health.LastSuccess(),
		})
	}
}

func handleKeepAlive(facade *app.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok := facade.Gateway.KeepAlive(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"success": ok})
	}
}

func handlePositions(facade *app.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		positions, err := facade.Gateway.GetAllPositions(c.Request.Context())
		if respondIfBrokerError(c, err) {
			return
		}
		c.JSON(http.StatusOK, positions)
	}
}

func handleRisk(facade *app.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		accounts := splitAccounts(c)
		unprotectedOnly := c.Query("unprotectedOnly") == "true"
		var (
			report interface{ ToCSV() ([]byte, error) }
			err    error
		)
		if unprotectedOnly {
			r, e := facade.UnprotectedRisk(c.Request.Context(), accounts)
			report, err = r, e
		} else {
			r, e := facade.CalculateWorstCaseScenario(c.Request.Context(), accounts)
			report, err = r, e
		}
		if respondIfBrokerError(c, err) {
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func handleRiskCSV(facade *app.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		accounts := splitAccounts(c)
		report, err := facade.CalculateWorstCaseScenario(c.Request.Context(), accounts)
		if respondIfBrokerError(c, err) {
			return
		}
		csvBytes, err := report.ToCSV()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/csv", csvBytes)
	}
}

func handleCreateMissingStops(facade *app.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.Query("accountId")
		results, err := facade.CreateMissingStopLosses(c.Request.Context(), accountID)
		if respondIfBrokerError(c, err) {
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

func handleCreateStopByConid(facade *app.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		conid, err := strconv.ParseInt(c.Param("conid"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conid"})
			return
		}
		accountID := c.Query("accountId")
		result, err := facade.CreateStopLossForPosition(c.Request.Context(), accountID, conid)
		if respondIfBrokerError(c, err) {
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func handleCreateStopByTicker(facade *app.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.Query("accountId")
		result, err := facade.CreateStopLossForPositionByTicker(c.Request.Context(), accountID, c.Param("ticker"))
		if respondIfBrokerError(c, err) {
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func respondIfBrokerError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	status := http.StatusBadGateway
	if broker.IsKind(err, broker.KindBadRequest) {
		status = http.StatusBadRequest
	} else if broker.IsKind(err, broker.KindTimeout) {
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
	return true
}
