package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/robfig/cron"

	"github.com/reconnectedcc/kromer/internal/hub"
	"github.com/reconnectedcc/kromer/internal/ledger"
	"github.com/reconnectedcc/kromer/internal/models"
	"github.com/reconnectedcc/kromer/internal/store"
	"github.com/reconnectedcc/kromer/internal/wstoken"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidSession), errors.Is(err, models.ErrMissingBearer), errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrWalletLocked):
		return http.StatusForbidden
	case errors.Is(err, models.ErrWalletNotFound), errors.Is(err, models.ErrNameNotFound),
		errors.Is(err, models.ErrContractNotFound), errors.Is(err, models.ErrNotNameOwner):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusBadRequest
	default:
		var invalid *models.InvalidParameterError
		if errors.As(err, &invalid) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"ok": false, "error": err.Error()})
}

// handleLogin implements POST /login (spec.md §6).
func (s *Server) handleLogin(c *gin.Context) {
	var body struct {
		PrivateKey string `json:"privatekey" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_parameter"})
		return
	}

	id, expires, address, err := s.sessions.RegisterFromKey(body.PrivateKey)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   id.String(),
		"expires": expires.UTC().Format(time.RFC3339),
		"address": address,
	})
}

// handleWsStart implements POST /ws/start (spec.md §6). The private key is
// optional: a guest connection is permitted.
func (s *Server) handleWsStart(c *gin.Context) {
	var body struct {
		PrivateKey string `json:"privatekey"`
	}
	_ = c.ShouldBindJSON(&body)

	data := wstoken.Data{Address: "guest"}
	if body.PrivateKey != "" {
		address, err := s.deriver.DeriveAddress(body.PrivateKey)
		if err == nil {
			ok, authErr := store.WalletAuthorizer{Store: s.store}.IsAuthorized(address)
			if authErr == nil && ok {
				key := body.PrivateKey
				data = wstoken.Data{Address: address, PrivateKey: &key}
			}
		}
	}

	id := s.tokens.Obtain(data)
	c.JSON(http.StatusOK, gin.H{"ok": true, "url": s.gatewayURL(id), "expires": 30})
}

func (s *Server) gatewayURL(id uuid.UUID) string {
	return s.cfg.WsScheme() + "://" + s.cfg.PublicURL + "/api/krist/ws/gateway/" + id.String()
}

// handleWsGateway upgrades the connection after consuming the hand-off
// token exactly once (spec.md §4.D transition 1).
func (s *Server) handleWsGateway(c *gin.Context) {
	tokenStr := c.Param("token")
	id, err := uuid.Parse(tokenStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_token"})
		return
	}

	data, err := s.tokens.Use(id)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "token_not_found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}

	s.hub.Accept(conn, hub.Identity{
		Address:    data.Address,
		PrivateKey: data.PrivateKey,
		ComputerID: data.ComputerID,
	})
}

func (s *Server) handleGetWallet(c *gin.Context) {
	wallet, err := s.store.GetWallet(c.Param("address"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

func (s *Server) handleGetName(c *gin.Context) {
	name, err := s.store.GetName(c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, name)
}

func (s *Server) handleCreateName(c *gin.Context) {
	var body struct {
		Name  string `json:"name" binding:"required"`
		Owner string `json:"owner" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_parameter"})
		return
	}
	name, err := s.store.CreateName(body.Name, body.Owner)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, name)
}

// handleUpdateName covers both name transfer (new owner) and a-record
// update; it sends on 4.G since a transfer can affect a contract's allow
// list indirectly through future subscription ownership.
func (s *Server) handleUpdateName(c *gin.Context) {
	name := c.Param("name")
	var body struct {
		Owner   *string `json:"owner"`
		ARecord *string `json:"a"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_parameter"})
		return
	}

	if body.Owner != nil {
		if err := s.store.UpdateNameOwner(name, *body.Owner); err != nil {
			fail(c, err)
			return
		}
	}
	if body.ARecord != nil {
		if err := s.store.UpdateNameARecord(name, body.ARecord); err != nil {
			fail(c, err)
			return
		}
	}
	s.signal.Notify()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleCreateContract(c *gin.Context) {
	var body struct {
		OwnerAddress   string              `json:"owner_address" binding:"required"`
		Title          string              `json:"title" binding:"required"`
		Description    *string             `json:"description"`
		Price          float64             `json:"price" binding:"required"`
		CronExpr       string              `json:"cron_expr" binding:"required"`
		MaxSubscribers *int64              `json:"max_subscribers"`
		AllowList      models.AllowList    `json:"allow_list"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_parameter"})
		return
	}

	titleLen := utf8.RuneCountInString(body.Title)
	if titleLen < models.MinTitleLen || titleLen > models.MaxTitleLen {
		fail(c, models.NewInvalidParameter("title", "must be between 1 and 64 characters"))
		return
	}
	if body.Description != nil && utf8.RuneCountInString(*body.Description) > models.MaxDescriptionLen {
		fail(c, models.NewInvalidParameter("description", "must be at most 500 characters"))
		return
	}
	if body.Price <= 0 {
		fail(c, models.NewInvalidParameter("price", "must be greater than 0"))
		return
	}
	if _, err := cron.Parse(body.CronExpr); err != nil {
		fail(c, models.NewInvalidParameter("cron_expr", "does not parse as a five-field schedule"))
		return
	}

	contract := &models.Contract{
		OwnerAddress:   body.OwnerAddress,
		Status:         models.ContractOpen,
		Title:          body.Title,
		Description:    body.Description,
		Price:          body.Price,
		CronExpr:       body.CronExpr,
		MaxSubscribers: body.MaxSubscribers,
		AllowList:      body.AllowList,
	}
	if err := s.store.CreateContract(contract); err != nil {
		fail(c, err)
		return
	}
	s.signal.Notify()
	c.JSON(http.StatusOK, contract)
}

func parseContractID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_parameter"})
		return 0, false
	}
	return id, true
}

// handleUpdateContract implements the three-valued PATCH of spec.md §9 for
// description and allow_list: a field omitted from the JSON body is left
// untouched; present-and-null clears it.
func (s *Server) handleUpdateContract(c *gin.Context) {
	id, ok := parseContractID(c)
	if !ok {
		return
	}

	var raw map[string]interface{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_parameter"})
		return
	}

	var patch store.ContractPatch
	if v, present := raw["description"]; present {
		patch.Description = store.SetTo(toStringPtr(v))
	}
	if v, present := raw["price"]; present {
		if f, isFloat := v.(float64); isFloat {
			patch.Price = store.SetTo(f)
		}
	}
	if v, present := raw["cron_expr"]; present {
		if expr, isStr := v.(string); isStr {
			if _, err := cron.Parse(expr); err != nil {
				fail(c, models.NewInvalidParameter("cron_expr", "does not parse as a five-field schedule"))
				return
			}
			patch.CronExpr = store.SetTo(expr)
		}
	}
	if v, present := raw["max_subscribers"]; present {
		if f, isFloat := v.(float64); isFloat {
			n := int64(f)
			patch.MaxSubs = store.SetTo(&n)
		} else {
			patch.MaxSubs = store.SetTo[*int64](nil)
		}
	}
	if v, present := raw["allow_list"]; present {
		patch.AllowList = store.SetTo(toAllowList(v))
	}

	contract, err := s.store.UpdateContract(id, patch)
	if err != nil {
		fail(c, err)
		return
	}
	s.signal.Notify()
	c.JSON(http.StatusOK, contract)
}

func (s *Server) handleCancelContract(c *gin.Context) {
	id, ok := parseContractID(c)
	if !ok {
		return
	}
	patch := store.ContractPatch{Status: store.SetTo(models.ContractCanceled)}
	contract, err := s.store.UpdateContract(id, patch)
	if err != nil {
		fail(c, err)
		return
	}
	s.signal.Notify()
	c.JSON(http.StatusOK, contract)
}

func (s *Server) handleCreateSubscription(c *gin.Context) {
	id, ok := parseContractID(c)
	if !ok {
		return
	}
	var body struct {
		PayerAddress string `json:"payer_address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_parameter"})
		return
	}

	contract, err := s.store.GetContract(id)
	if err != nil {
		fail(c, err)
		return
	}
	if contract.AllowList != nil && !contract.AllowList.Contains(body.PayerAddress) {
		fail(c, models.ErrUnauthorized)
		return
	}

	schedule, err := cron.Parse(contract.CronExpr)
	if err != nil {
		fail(c, models.NewInvalidParameter("cron_expr", "contract has an unparseable schedule"))
		return
	}
	lapsedAt := schedule.Next(time.Now())

	sub, err := s.store.CreateSubscription(id, body.PayerAddress, lapsedAt)
	if err != nil {
		fail(c, err)
		return
	}
	s.signal.Notify()
	c.JSON(http.StatusOK, sub)
}

// handleCancelSubscription is the user-initiated cancel of SPEC_FULL.md
// §4.I: it sets status=canceled/lapsed_at=NULL directly, bypassing the
// scheduler since this isn't a lapse.
func (s *Server) handleCancelSubscription(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_parameter"})
		return
	}
	rows, err := s.store.CancelSubscription(id)
	if err != nil {
		fail(c, err)
		return
	}
	if rows == 0 {
		fail(c, models.ErrContractNotFound)
		return
	}
	s.signal.Notify()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleTransfer is the authenticated manual transfer endpoint, delegating
// to 4.A through a bearer session (spec.md §4.A).
func (s *Server) handleTransfer(c *gin.Context) {
	tokenStr := c.GetHeader("Authorization")
	if tokenStr == "" {
		fail(c, models.ErrMissingBearer)
		return
	}
	id, err := uuid.Parse(tokenStr)
	if err != nil {
		fail(c, models.ErrInvalidSession)
		return
	}
	address, ok := s.sessions.GetAddress(id)
	if !ok {
		fail(c, models.ErrInvalidSession)
		return
	}

	var body struct {
		To       string  `json:"to" binding:"required"`
		Amount   float64 `json:"amount" binding:"required"`
		Metadata string  `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_parameter"})
		return
	}

	var metadata *string
	if body.Metadata != "" {
		metadata = &body.Metadata
	}
	tx, err := s.ledger.Transfer(address, body.To, body.Amount, models.TransactionTransfer, ledger.TransferOptions{
		Metadata: metadata,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func toStringPtr(v interface{}) *string {
	if v == nil {
		return nil
	}
	if str, ok := v.(string); ok {
		return &str
	}
	return nil
}

func toAllowList(v interface{}) models.AllowList {
	if v == nil {
		return nil
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make(models.AllowList, 0, len(items))
	for _, item := range items {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}
