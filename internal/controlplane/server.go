package controlplane

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zorabot/gozora/internal/services"
	"github.com/zorabot/gozora/pkg/logger"
)

// Server 状态 HTTP 服务：暴露账户、持仓、历史的只读视图
type Server struct {
	agent   *services.TradingAgent
	journal *Journal // 可选；为空时历史接口退回内存记录
	httpSrv *http.Server
}

// NewServer 创建状态服务
func NewServer(addr string, agent *services.TradingAgent, journal *Journal) *Server {
	s := &Server{agent: agent, journal: journal}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/status", s.handleStatus)
	r.GET("/portfolio", s.handlePortfolio)
	r.GET("/history", s.handleHistory)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start 启动监听（阻塞，通常在独立 goroutine 里调用）
func (s *Server) Start() error {
	logger.Infof("📡 状态服务监听 %s", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleStatus(c *gin.Context) {
	p := s.agent.Portfolio()
	c.JSON(http.StatusOK, gin.H{
		"mode":         string(s.agent.Mode()),
		"wallet":       p.WalletAddress(),
		"cash_usd":     p.CashBalance(),
		"holdings_usd": p.HoldingsValue(),
		"total_usd":    p.TotalValue(),
		"last_updated": p.LastUpdated(),
		"trade_count":  len(s.agent.History()),
	})
}

func (s *Server) handlePortfolio(c *gin.Context) {
	p := s.agent.Portfolio()
	holdings := p.Holdings()

	type holdingView struct {
		Symbol           string  `json:"symbol"`
		Address          string  `json:"address"`
		Amount           float64 `json:"amount"`
		AvgPurchasePrice float64 `json:"avg_purchase_price"`
		CurrentPrice     float64 `json:"current_price"`
		CurrentValue     float64 `json:"current_value"`
		ProfitLossPct    float64 `json:"profit_loss_pct"`
	}

	out := make([]holdingView, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, holdingView{
			Symbol:           h.Coin.Symbol,
			Address:          h.Coin.Address,
			Amount:           h.Amount,
			AvgPurchasePrice: h.AvgPurchasePrice,
			CurrentPrice:     h.Coin.CurrentPrice,
			CurrentValue:     h.CurrentValue(),
			ProfitLossPct:    h.ProfitLossPercent(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"cash_usd":  p.CashBalance(),
		"total_usd": p.TotalValue(),
		"holdings":  out,
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := 50
	if v, ok := c.GetQuery("limit"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	if s.journal != nil {
		records, err := s.journal.Recent(limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"trades": records})
		return
	}

	history := s.agent.History()
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	c.JSON(http.StatusOK, gin.H{"trades": history})
}
