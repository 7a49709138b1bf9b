package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accountdomain "github.com/tapkeeper/tapkeeper/internal/account/domain"
	itemdomain "github.com/tapkeeper/tapkeeper/internal/item/domain"
)

func (s *Server) HandleListItems(c *gin.Context) {
	items, err := s.itemRepo.List(c.Request.Context(), s.db)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []*itemdomain.Item{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type recordPurchaseRequest struct {
	AccountID string `json:"account_id"`
	ItemID    string `json:"item_id"`
}

func (s *Server) HandleRecordPurchase(c *gin.Context) {
	var req recordPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
	if err != nil {
		AbortWithError(c, accountdomain.ErrInvalidID)
		return
	}
	itemID, err := snowflake.ParseString(strings.TrimSpace(req.ItemID))
	if err != nil {
		AbortWithError(c, newValidationError("item_id", "invalid_item_id", "invalid item id"))
		return
	}

	txn, err := s.ledgerSvc.RecordPurchase(c.Request.Context(), accountID, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": txn})
}

func (s *Server) HandleListTransactions(c *gin.Context) {
	accountID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, accountdomain.ErrInvalidID)
		return
	}

	txns, err := s.ledgerSvc.ListByAccount(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}
