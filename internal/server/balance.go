package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/tapkeeper/tapkeeper/internal/account/domain"
	"github.com/tapkeeper/tapkeeper/internal/providers/mollie"
	"go.uber.org/zap"
)

type balanceResponse struct {
	Balance     int64  `json:"balance"`
	PaymentLink string `json:"payment_link,omitempty"`
}

// HandleBalance returns the account's balance. A negative balance comes with
// a fresh checkout link over the amount owed.
func (s *Server) HandleBalance(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		AbortWithError(c, newValidationError("user_id", "required", "user_id is required"))
		return
	}

	ctx := c.Request.Context()
	if s.limiter != nil && !s.limiter.AllowBalance(ctx, userID) {
		c.Header("Retry-After", "1")
		AbortWithError(c, ErrRateLimited)
		return
	}

	account, err := s.accountRepo.FindBySlackID(ctx, s.db, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if account == nil {
		AbortWithError(c, accountdomain.ErrNotFound)
		return
	}

	balance := account.Balance()
	resp := balanceResponse{Balance: balance}

	if balance < 0 {
		payment, err := s.createCheckout(c, account.ID.String(), -balance,
			fmt.Sprintf("Bar tab settlement for %s", account.Name))
		if err != nil {
			s.log.Error("checkout session for balance failed",
				zap.String("slack_id", userID), zap.Error(err))
			AbortWithError(c, fmt.Errorf("%w: %v", ErrUpstreamGateway, err))
			return
		}
		resp.PaymentLink = payment.CheckoutURL
	}

	c.JSON(http.StatusOK, resp)
}

// createCheckout opens a hosted checkout session whose webhook URL carries
// the account ID, so the notification can be attributed without trusting
// its body.
func (s *Server) createCheckout(c *gin.Context, accountID string, amount int64, description string) (*mollie.Payment, error) {
	return s.payments.CreatePayment(c.Request.Context(), mollie.CreatePaymentRequest{
		Amount:      amount,
		Currency:    s.cfg.Mollie.Currency,
		Description: description,
		RedirectURL: s.cfg.BaseURL,
		WebhookURL:  fmt.Sprintf("%s/api/payments/webhook?account_id=%s", s.cfg.BaseURL, accountID),
		Metadata:    map[string]string{"account_id": accountID},
	})
}
