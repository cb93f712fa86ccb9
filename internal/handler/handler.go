package handler

import (
	"strconv"

	"imagepay/internal/config"
	"imagepay/internal/infrastructure/cache"
	"imagepay/internal/job"
	"imagepay/internal/model"
	"imagepay/internal/service"
	"imagepay/pkg/response"

	"github.com/gin-gonic/gin"
)

type Services struct {
	Identity   *service.IdentityService
	Ledger     *service.LedgerService
	Payments   *service.PaymentService
	Generation *service.GenerationService
	Analytics  *service.AnalyticsService
	Outbox     *job.OutboxSender
}

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	svc      Services
	sessions cache.SessionStore
	cfg      *config.Config
}

func NewHandler(svc Services, sessions cache.SessionStore, cfg *config.Config) *Handler {
	return &Handler{
		svc:      svc,
		sessions: sessions,
		cfg:      cfg,
	}
}

// ============================================================
// 登录注册
// ============================================================

type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

// Register 注册并直接登录
// POST /api/v1/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.svc.Identity.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	h.startSession(c, account)
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 登录
// POST /api/v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.svc.Identity.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	h.startSession(c, account)
}

func (h *Handler) startSession(c *gin.Context, account *model.Account) {
	token, err := h.sessions.Create(c.Request.Context(), account.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"token":   token,
		"account": account,
	})
}

// Logout 退出登录
// POST /api/v1/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.GetString(ctxKeyToken)); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "已退出登录"})
}

// ============================================================
// 账户
// ============================================================

// Me 当前账户信息
// GET /api/v1/account/me
func (h *Handler) Me(c *gin.Context) {
	account := currentAccount(c)
	response.Success(c, gin.H{
		"account": account,
		"has_key": h.svc.Generation.HasKey(account.ID),
	})
}

// MyLedger 当前账户积分流水
// GET /api/v1/account/ledger
func (h *Handler) MyLedger(c *gin.Context) {
	entries, err := h.svc.Ledger.ListEntries(c.Request.Context(), currentAccount(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": entries})
}

// ============================================================
// 支付
// ============================================================

// Plans 套餐列表和人工转账收款账号
// GET /api/v1/plans
func (h *Handler) Plans(c *gin.Context) {
	response.Success(c, gin.H{
		"plans":  h.cfg.Plans,
		"upi_id": h.cfg.Business.UPIID,
	})
}

// CreatePaymentRequest 指定 plan_id 时按套餐计价，否则使用 amount 和 credits
type CreatePaymentRequest struct {
	PlanID        string `json:"plan_id"`
	Amount        int64  `json:"amount"`
	Credits       int64  `json:"credits"`
	Method        string `json:"method" binding:"required"`
	TransactionID string `json:"transaction_id"`
}

// CreatePayment 购买积分
// POST /api/v1/payment/create
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if req.Method == model.PaymentMethodManualTransfer && req.TransactionID == "" {
		response.ParamError(c, "人工转账需要填写转账凭证号")
		return
	}

	ctx := c.Request.Context()
	accountID := currentAccount(c).ID

	var (
		payment *model.Payment
		err     error
	)
	if req.PlanID != "" {
		payment, err = h.svc.Payments.PurchasePlan(ctx, accountID, req.PlanID, req.Method, req.TransactionID)
	} else {
		payment, err = h.svc.Payments.CreatePayment(ctx, accountID, req.Amount, req.Credits, req.Method, req.TransactionID)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, payment)
}

// ListMyPayments 当前账户支付记录
// GET /api/v1/payment/list
func (h *Handler) ListMyPayments(c *gin.Context) {
	payments, err := h.svc.Payments.ListUserPayments(c.Request.Context(), currentAccount(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": payments})
}

// ============================================================
// 图片生成
// ============================================================

type GenerateRequest struct {
	Prompt string `json:"prompt" binding:"required"`
	Size   string `json:"size"`
}

// Generate 生成图片
// POST /api/v1/generation/create
func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	record, err := h.svc.Generation.Generate(c.Request.Context(), currentAccount(c).ID, req.Prompt, req.Size)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, record)
}

// ListGenerations 当前账户生成记录，最新在前
// GET /api/v1/generation/list
func (h *Handler) ListGenerations(c *gin.Context) {
	records, err := h.svc.Generation.ListUserGenerations(c.Request.Context(), currentAccount(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": records})
}

type SetKeyRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// SetKey 选择 API key
// PUT /api/v1/generation/key
func (h *Handler) SetKey(c *gin.Context) {
	var req SetKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := h.svc.Generation.SetKey(currentAccount(c).ID, req.APIKey); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"has_key": true})
}

// ClearKey 清除已选择的 API key
// DELETE /api/v1/generation/key
func (h *Handler) ClearKey(c *gin.Context) {
	accountID := currentAccount(c).ID
	h.svc.Generation.ClearKey(accountID)
	response.Success(c, gin.H{"has_key": h.svc.Generation.HasKey(accountID)})
}

// ============================================================
// 管理员
// ============================================================

// AdminListPayments 支付记录，可按状态过滤
// GET /api/v1/admin/payments?status=PENDING
func (h *Handler) AdminListPayments(c *gin.Context) {
	payments, err := h.svc.Payments.ListPayments(c.Request.Context(), c.Query("status"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": payments})
}

type ApproveRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
}

// AdminApprove 审核人工转账
// POST /api/v1/admin/payment/approve
func (h *Handler) AdminApprove(c *gin.Context) {
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	payment, err := h.svc.Payments.Approve(c.Request.Context(), req.PaymentID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, payment)
}

// AdminListAccounts 全部账户
// GET /api/v1/admin/accounts
func (h *Handler) AdminListAccounts(c *gin.Context) {
	accounts, err := h.svc.Identity.ListAccounts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": accounts})
}

type AdjustCreditsRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Direction string `json:"direction" binding:"required,oneof=CREDIT DEBIT"`
}

// AdminAdjustCredits 手工增减积分
// POST /api/v1/admin/account/credits
func (h *Handler) AdminAdjustCredits(c *gin.Context) {
	var req AdjustCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.svc.Ledger.Adjust(c.Request.Context(), req.AccountID, req.Amount, service.Direction(req.Direction))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, account)
}

// AdminAnalytics 统计数据
// GET /api/v1/admin/analytics
func (h *Handler) AdminAnalytics(c *gin.Context) {
	summary, err := h.svc.Analytics.Summarize(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, summary)
}

// outboxLimit 单次查看或重新入队的消息数，默认 100，最多 1000
func outboxLimit(c *gin.Context) (int, bool) {
	raw := c.DefaultQuery("limit", "100")
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 1000 {
		response.ParamError(c, "参数错误: limit 需在 1-1000 之间")
		return 0, false
	}
	return limit, true
}

// AdminListFailedMessages 超过重试次数的事件消息
// GET /api/v1/admin/outbox/failed
func (h *Handler) AdminListFailedMessages(c *gin.Context) {
	limit, ok := outboxLimit(c)
	if !ok {
		return
	}
	messages, err := h.svc.Outbox.ListFailed(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": messages})
}

// AdminRequeueMessages 失败消息重新入队投递
// POST /api/v1/admin/outbox/requeue
func (h *Handler) AdminRequeueMessages(c *gin.Context) {
	limit, ok := outboxLimit(c)
	if !ok {
		return
	}
	n, err := h.svc.Outbox.RequeueFailed(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"requeued": n})
}
