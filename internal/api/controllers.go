package api

import (
	"errors"
	"net/http"
	"strconv"

	"spot-trader/internal/ledger"

	"github.com/gin-gonic/gin"
)

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.GetSystemStatus(c.Request.Context()))
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.GetMetrics(c.Request.Context()))
}

func (s *Server) getPositions(c *gin.Context) {
	positions := s.Engine.GetPositions(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"positions": positions,
		"count":     len(positions),
	})
}

func (s *Server) getClosedPositions(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	positions, err := s.Engine.GetClosedPositions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"positions": positions,
		"count":     len(positions),
	})
}

func (s *Server) getOrders(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	orders, err := s.Engine.GetRecentOrders(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

func (s *Server) getBalance(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.GetBalance(c.Request.Context()))
}

func (s *Server) getRiskMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.GetRiskMetrics(c.Request.Context()))
}

func (s *Server) getDailyStats(c *gin.Context) {
	stats, err := s.Engine.GetDailyStats(c.Request.Context(), c.Query("date"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) closePosition(c *gin.Context) {
	id := c.Param("id")
	err := s.Engine.ClosePosition(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":  "POSITION_NOT_FOUND",
				"error": "no open position with that id",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "CLOSE_FAILED",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": id})
}

func (s *Server) halt(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.BindJSON(&req)
	if req.Reason == "" {
		req.Reason = "operator halt"
	}

	if err := s.Engine.Halt(c.Request.Context(), req.Reason); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "HALT_FAILED",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"halted": true, "reason": req.Reason})
}

func (s *Server) resume(c *gin.Context) {
	if err := s.Engine.Resume(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "RESUME_FAILED",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"halted": false})
}

func (s *Server) flattenAll(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.BindJSON(&req)

	if err := s.Engine.FlattenAll(c.Request.Context(), req.Reason); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "FLATTEN_FAILED",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"flattened": true})
}
