package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/retailsales/internal/fact/domain"
)

// createTransactionRequest carries money as decimal strings, e.g. "50.00".
type createTransactionRequest struct {
	TransactionID   string `json:"transaction_id"`
	SoldOn          string `json:"sold_on"`
	CustomerID      string `json:"customer_id"`
	CustomerName    string `json:"customer_name"`
	CustomerAddress string `json:"customer_address"`
	RegionID        string `json:"region_id"`
	RegionName      string `json:"region_name"`
	CategoryID      string `json:"category_id"`
	CategoryName    string `json:"category_name"`
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name"`
	Quantity        int64  `json:"quantity"`
	UnitPrice       string `json:"unit_price"`
	Discount        string `json:"discount"`
	Amount          string `json:"amount"`
}

func (s *Server) CreateTransaction(c *gin.Context) {
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	soldOn, err := parseDay(req.SoldOn)
	if err != nil {
		AbortWithError(c, newValidationError("sold_on", "invalid_sold_on", "sold_on must be YYYY-MM-DD"))
		return
	}
	unitPrice, err := domain.ParseMoney(req.UnitPrice)
	if err != nil {
		AbortWithError(c, newValidationError("unit_price", "invalid_unit_price", err.Error()))
		return
	}
	amount, err := domain.ParseMoney(req.Amount)
	if err != nil {
		AbortWithError(c, newValidationError("amount", "invalid_amount", err.Error()))
		return
	}
	var discount int64
	if req.Discount != "" {
		discount, err = domain.ParseMoney(req.Discount)
		if err != nil {
			AbortWithError(c, newValidationError("discount", "invalid_discount", err.Error()))
			return
		}
	}

	id, err := s.facts.InsertTransaction(c.Request.Context(), domain.InsertTransactionRequest{
		TransactionID:   req.TransactionID,
		SoldOn:          soldOn,
		CustomerID:      req.CustomerID,
		CustomerName:    req.CustomerName,
		CustomerAddress: req.CustomerAddress,
		RegionID:        req.RegionID,
		RegionName:      req.RegionName,
		CategoryID:      req.CategoryID,
		CategoryName:    req.CategoryName,
		ProductID:       req.ProductID,
		ProductName:     req.ProductName,
		Quantity:        req.Quantity,
		UnitPrice:       unitPrice,
		Discount:        discount,
		Amount:          amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"id": id.String(), "transaction_id": req.TransactionID}})
}
