package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accountdomain "github.com/tapkeeper/tapkeeper/internal/account/domain"
	ledgerdomain "github.com/tapkeeper/tapkeeper/internal/ledger/domain"
	"github.com/tapkeeper/tapkeeper/internal/providers/mollie"
	"go.uber.org/zap"
)

const webhookEventPaymentStatusChanged = "payment.status.changed"

type sendPaymentLinkRequest struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

type sendPaymentLinkResponse struct {
	Success    bool   `json:"success"`
	CheckoutID string `json:"checkout_id"`
}

// HandleSendPaymentLink opens a checkout session for the given amount and
// DMs the link to the account's directory member.
func (s *Server) HandleSendPaymentLink(c *gin.Context) {
	var req sendPaymentLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.AccountID) == "" {
		AbortWithError(c, newValidationError("account_id", "required", "account_id is required"))
		return
	}
	if req.Amount <= 0 {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must be positive"))
		return
	}

	accountID, err := snowflake.ParseString(req.AccountID)
	if err != nil {
		AbortWithError(c, accountdomain.ErrInvalidID)
		return
	}

	ctx := c.Request.Context()
	account, err := s.accountRepo.FindByID(ctx, s.db, accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if account == nil {
		AbortWithError(c, accountdomain.ErrNotFound)
		return
	}

	payment, err := s.createCheckout(c, account.ID.String(), req.Amount,
		fmt.Sprintf("Bar tab payment for %s", account.Name))
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrUpstreamGateway, err))
		return
	}

	text := fmt.Sprintf("Hi %s, here is your bar tab payment link: %s", account.Name, payment.CheckoutURL)
	if err := s.slack.SendDirectMessage(ctx, account.SlackID, text); err != nil {
		s.log.Error("payment link dm failed",
			zap.String("slack_id", account.SlackID),
			zap.String("checkout_id", payment.ID),
			zap.Error(err))
		AbortWithError(c, fmt.Errorf("%w: %v", ErrUpstreamGateway, err))
		return
	}

	c.JSON(http.StatusOK, sendPaymentLinkResponse{Success: true, CheckoutID: payment.ID})
}

type paymentWebhookRequest struct {
	EventType string `json:"event_type"`
	ID        string `json:"id"`
}

// HandlePaymentWebhook processes gateway status notifications. The body is
// never trusted; the payment is re-fetched and only a verified paid status
// is recorded. Replays collide on the transaction ID and acknowledge with
// 200 so the gateway stops retrying.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	var req paymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.recordWebhookOutcome("rejected")
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.EventType != webhookEventPaymentStatusChanged || strings.TrimSpace(req.ID) == "" {
		s.recordWebhookOutcome("rejected")
		AbortWithError(c, newValidationError("event_type", "unsupported_event", "unsupported event"))
		return
	}

	ctx := c.Request.Context()
	payment, err := s.payments.GetPayment(ctx, req.ID)
	if err != nil {
		if errors.Is(err, mollie.ErrPaymentNotFound) {
			s.recordWebhookOutcome("rejected")
			AbortWithError(c, ErrNotFound)
			return
		}
		s.recordWebhookOutcome("error")
		AbortWithError(c, fmt.Errorf("%w: %v", ErrUpstreamGateway, err))
		return
	}

	if payment.Status != mollie.StatusPaid {
		s.recordWebhookOutcome("ignored")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	accountID, err := snowflake.ParseString(strings.TrimSpace(c.Query("account_id")))
	if err != nil {
		s.recordWebhookOutcome("rejected")
		AbortWithError(c, accountdomain.ErrNotFound)
		return
	}

	_, err = s.ledgerSvc.RecordPayment(ctx, accountID, payment.Amount, payment.ID)
	switch {
	case err == nil:
		s.recordWebhookOutcome("recorded")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, ledgerdomain.ErrDuplicateTransaction):
		// Already on the ledger; acknowledge the replay.
		s.recordWebhookOutcome("duplicate")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, accountdomain.ErrNotFound):
		s.recordWebhookOutcome("rejected")
		AbortWithError(c, err)
	default:
		s.recordWebhookOutcome("error")
		AbortWithError(c, err)
	}
}

func (s *Server) recordWebhookOutcome(outcome string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordWebhookEvent(outcome)
}
