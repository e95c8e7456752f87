package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/interfaces"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/flags"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

type AccountsHandler struct {
	accounts interfaces.AccountRepository
	manager  interfaces.SynchronizationManager
}

func NewAccountsHandler(accounts interfaces.AccountRepository, manager interfaces.SynchronizationManager) *AccountsHandler {
	return &AccountsHandler{accounts: accounts, manager: manager}
}

// List returns the stored accounts with their last reported sync status
func (h *AccountsHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "AccountsHandler.List")
		defer span.Finish()

		accounts, err := h.accounts.ListKnownAccounts(ctx)
		if err != nil {
			respondErr(c, span, err)
			return
		}
		c.JSON(http.StatusOK, accounts)
	}
}

// Create stores an account and registers a synchronizer for it. Accounts
// with automatic sync start right away when the manager is running.
func (h *AccountsHandler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "AccountsHandler.Create")
		defer span.Finish()

		var req dto.CreateAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		account := &models.Account{
			EmailAddress:  req.EmailAddress,
			Host:          req.Host,
			Port:          req.Port,
			Username:      req.Username,
			Password:      req.Password,
			SocketType:    req.SocketType,
			AutomaticSync: req.AutomaticSync,
		}
		if err := h.accounts.SaveAccount(ctx, account); err != nil {
			respondErr(c, span, err)
			return
		}
		tracing.TagAccount(span, account.ID)

		if err := h.manager.Refresh(ctx); err != nil {
			respondErr(c, span, err)
			return
		}
		if account.AutomaticSync && h.manager.IsRunning() {
			if err := h.manager.StartAccount(ctx, account.ID); err != nil {
				respondErr(c, span, err)
				return
			}
		}

		c.JSON(http.StatusCreated, account)
	}
}

func (h *AccountsHandler) Start() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "AccountsHandler.Start")
		defer span.Finish()

		id := c.Param("id")
		if err := h.manager.StartAccount(ctx, id); err != nil {
			respondErr(c, span, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "started", "id": id})
	}
}

func (h *AccountsHandler) Stop() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, _ := tracing.StartTracerSpan(c.Request.Context(), "AccountsHandler.Stop")
		defer span.Finish()

		id := c.Param("id")
		if err := h.manager.StopAccount(id); err != nil {
			respondErr(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "stopped", "id": id})
	}
}

// QueueFlags records a local flag edit; it reaches the server on the
// account's next pass.
func (h *AccountsHandler) QueueFlags() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "AccountsHandler.QueueFlags")
		defer span.Finish()

		var req dto.FlagUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		add, err := flags.Parse(req.Add)
		if err != nil {
			respondErr(c, span, errors.Wrap(mserrors.ErrInvalidFlags, err.Error()))
			return
		}
		remove, err := flags.Parse(req.Remove)
		if err != nil {
			respondErr(c, span, errors.Wrap(mserrors.ErrInvalidFlags, err.Error()))
			return
		}

		update := flags.Update{Folder: req.Folder, UID: req.UID, Add: add, Remove: remove}
		if err := h.manager.QueueFlagUpdate(ctx, c.Param("id"), update); err != nil {
			respondErr(c, span, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	}
}
