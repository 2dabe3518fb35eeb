package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/ledger-service/internal/service"
	"github.com/richardliu001/ledger-service/internal/simplify"
	"github.com/shopspring/decimal"
)

// Services are the ledger operations exposed over HTTP.
type Services struct {
	Debts       *service.DebtService
	Settlements *service.SettlementService
	Balances    *service.BalanceService
}

func RegisterHandlers(r *gin.Engine, svc Services, authn gin.HandlerFunc) {
	v1 := r.Group("/v1", authn)
	{
		v1.POST("/simplify", simplifyHandler())

		a := v1.Group("/apartments/:apt")
		a.POST("/debts", createDebtHandler(svc.Debts))
		a.GET("/debts", listDebtsHandler(svc.Debts))
		a.GET("/debts/:debt", getDebtHandler(svc.Debts))
		a.POST("/debts/:debt/settle", settleHandler(svc.Settlements))
		a.POST("/settlements", createAndCloseHandler(svc.Settlements))
		a.POST("/expenses", createExpenseHandler(svc.Debts))
		a.GET("/history", historyHandler(svc.Debts))
		a.GET("/balances", balancesHandler(svc.Balances))
		a.POST("/balances/recompute", recomputeHandler(svc.Balances))
		a.GET("/transfers/suggested", suggestedHandler(svc.Balances))
	}
}

// idempotencyKey prefers the body field over the Idempotency-Key header.
func idempotencyKey(c *gin.Context, body string) string {
	if body != "" {
		return body
	}
	return c.GetHeader("Idempotency-Key")
}

func parseAmount(c *gin.Context, s string) (decimal.Decimal, bool) {
	amt, err := decimal.NewFromString(s)
	if err != nil {
		badRequest(c, "invalid amount %q", s)
		return decimal.Zero, false
	}
	return amt, true
}

type createDebtReq struct {
	DebtorID       string `json:"debtor_id" binding:"required"`
	CreditorID     string `json:"creditor_id" binding:"required"`
	Amount         string `json:"amount" binding:"required"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key"`
}

func createDebtHandler(svc *service.DebtService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createDebtReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "%v", err)
			return
		}
		amt, ok := parseAmount(c, req.Amount)
		if !ok {
			return
		}
		d, err := svc.CreateDebt(c, service.CreateDebtInput{
			ApartmentID: c.Param("apt"), DebtorID: req.DebtorID, CreditorID: req.CreditorID,
			Amount: amt, Description: req.Description, ActorID: actorID(c),
			IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, d)
	}
}

func listDebtsHandler(svc *service.DebtService) gin.HandlerFunc {
	return func(c *gin.Context) {
		debts, err := svc.ListOpenDebts(c, c.Param("apt"), actorID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"debts": debts})
	}
}

func getDebtHandler(svc *service.DebtService) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := svc.GetDebt(c, c.Param("apt"), c.Param("debt"), actorID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

type settleReq struct {
	IdempotencyKey string `json:"idempotency_key"`
}

func settleHandler(svc *service.SettlementService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req settleReq
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, "%v", err)
				return
			}
		}
		res, err := svc.SettleDebt(c, service.SettleDebtInput{
			ApartmentID: c.Param("apt"), DebtID: c.Param("debt"), ActorID: actorID(c),
			IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

type createAndCloseReq struct {
	FromUserID     string `json:"from_user_id" binding:"required"`
	ToUserID       string `json:"to_user_id" binding:"required"`
	Amount         string `json:"amount" binding:"required"`
	DebtID         string `json:"debt_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

func createAndCloseHandler(svc *service.SettlementService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createAndCloseReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "%v", err)
			return
		}
		amt, ok := parseAmount(c, req.Amount)
		if !ok {
			return
		}
		res, err := svc.CreateAndCloseDebt(c, service.CreateAndCloseInput{
			ApartmentID: c.Param("apt"), FromUserID: req.FromUserID, ToUserID: req.ToUserID,
			Amount: amt, ActorID: actorID(c), DebtID: req.DebtID,
			IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

type createExpenseReq struct {
	PayerID        string   `json:"payer_id" binding:"required"`
	Amount         string   `json:"amount" binding:"required"`
	ParticipantIDs []string `json:"participant_ids" binding:"required"`
	Description    string   `json:"description"`
	IdempotencyKey string   `json:"idempotency_key"`
}

func createExpenseHandler(svc *service.DebtService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createExpenseReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "%v", err)
			return
		}
		amt, ok := parseAmount(c, req.Amount)
		if !ok {
			return
		}
		res, err := svc.CreateExpense(c, service.CreateExpenseInput{
			ApartmentID: c.Param("apt"), PayerID: req.PayerID, Amount: amt,
			ParticipantIDs: req.ParticipantIDs, Description: req.Description, ActorID: actorID(c),
			IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, res)
	}
}

func historyHandler(svc *service.DebtService) gin.HandlerFunc {
	return func(c *gin.Context) {
		h, err := svc.ListHistory(c, c.Param("apt"), actorID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, h)
	}
}

func balancesHandler(svc *service.BalanceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		source := c.DefaultQuery("source", service.SourceMaterialized)
		rows, err := svc.GetBalances(c, c.Param("apt"), actorID(c), source)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"source": source, "balances": rows})
	}
}

func recomputeHandler(svc *service.BalanceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := svc.RecomputeBalances(c, c.Param("apt"), actorID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balances": rows})
	}
}

func suggestedHandler(svc *service.BalanceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		transfers, err := svc.SuggestedTransfers(c, c.Param("apt"), actorID(c), c.Query("source"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transfers": transfers})
	}
}

type simplifyReq struct {
	Balances []simplify.Balance `json:"balances"`
	Edges    []simplify.Edge    `json:"edges"`
}

// simplifyHandler is pure: it reads no ledger state.
func simplifyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req simplifyReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "%v", err)
			return
		}
		if len(req.Balances) > 0 && len(req.Edges) > 0 {
			badRequest(c, "send balances or edges, not both")
			return
		}
		var transfers []simplify.Transfer
		if len(req.Edges) > 0 {
			transfers = simplify.SimplifyEdges(req.Edges)
		} else {
			transfers = simplify.Simplify(req.Balances)
		}
		if transfers == nil {
			transfers = []simplify.Transfer{}
		}
		c.JSON(http.StatusOK, gin.H{"transfers": transfers})
	}
}
