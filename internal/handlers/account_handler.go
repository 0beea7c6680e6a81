package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/coastledger/backend/internal/models"
	"github.com/coastledger/backend/internal/services"
)

type AccountHandler struct {
	ledger    *services.LedgerService
	codes     *services.ReceiveCodeService
	validator *validator.Validate
}

type amountRequest struct {
	Amount string `json:"amount" validate:"required"`
	Note   string `json:"note" validate:"max=200"`
}

type transferRequest struct {
	FromAccountID string `json:"from_account_id" validate:"required"`
	ToAccountID   string `json:"to_account_id" validate:"required"`
	Amount        string `json:"amount" validate:"required"`
	Note          string `json:"note" validate:"max=200"`
}

type transferByCodeRequest struct {
	FromAccountID string `json:"from_account_id" validate:"required"`
	Code          string `json:"code" validate:"required"`
	Amount        string `json:"amount" validate:"required"`
	Note          string `json:"note" validate:"max=200"`
}

func NewAccountHandler(ledger *services.LedgerService, codes *services.ReceiveCodeService) *AccountHandler {
	return &AccountHandler{
		ledger:    ledger,
		codes:     codes,
		validator: validator.New(),
	}
}

// OpenAccount opens a zero-balance account for the authenticated user.
func (h *AccountHandler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("userID").(string)

	accountID, err := h.ledger.OpenAccount(r.Context(), userID)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	acct, err := h.ledger.Account(r.Context(), accountID)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

// ListAccounts lists the authenticated user's accounts.
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("userID").(string)

	accounts, err := h.ledger.AccountsForUser(r.Context(), userID)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// Balance returns the account's current balance.
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": acct.ID,
		"balance":    acct.Balance,
		"frozen":     acct.Frozen,
	})
}

// Deposit credits the account and records a DEPOSIT entry atomically.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}

	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return
	}

	entry, err := h.ledger.Deposit(r.Context(), acct.ID, amount, req.Note)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// Withdraw debits the account and records a WITHDRAWAL entry atomically.
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}

	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return
	}

	entry, err := h.ledger.Withdraw(r.Context(), acct.ID, amount, req.Note)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// Transfer moves funds between two accounts; the source must belong to the
// authenticated user.
func (h *AccountHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return
	}

	if !h.authorize(w, r, req.FromAccountID) {
		return
	}

	if err := h.ledger.Transfer(r.Context(), req.FromAccountID, req.ToAccountID, amount, req.Note); err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// TransferByCode resolves a receive code to its destination account and
// performs a normal transfer.
func (h *AccountHandler) TransferByCode(w http.ResponseWriter, r *http.Request) {
	var req transferByCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return
	}

	if !h.authorize(w, r, req.FromAccountID) {
		return
	}

	toAccountID, err := h.codes.Resolve(r.Context(), req.Code)
	if err != nil {
		log.Printf("[TRANSFER] Receive code resolution failed: %v", err)
		SendErrorResponse(w, "Invalid or expired receive code", http.StatusBadRequest, nil)
		return
	}

	if err := h.ledger.Transfer(r.Context(), req.FromAccountID, toAccountID, amount, req.Note); err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Transactions returns the account's history, newest first.
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}

	txs, err := h.ledger.Transactions(r.Context(), acct.ID)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"count":        len(txs),
	})
}

// ReceiveCode issues a short-lived code and QR image for receiving a
// transfer into this account.
func (h *AccountHandler) ReceiveCode(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}

	code, image, err := h.codes.Generate(r.Context(), acct)
	if err != nil {
		log.Printf("[RECEIVE_CODE] Generation failed for account %s: %v", acct.ID, err)
		SendErrorResponse(w, "Failed to generate receive code", http.StatusInternalServerError, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"code":           code,
		"qr_image":       image,
		"account_number": acct.AccountNumber,
	})
}

// ownedAccount loads the {accountID} URL param and enforces that it belongs
// to the caller (admins bypass the ownership check).
func (h *AccountHandler) ownedAccount(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	accountID := chi.URLParam(r, "accountID")

	acct, err := h.ledger.Account(r.Context(), accountID)
	if err != nil {
		sendDomainError(w, err)
		return nil, false
	}

	userID, _ := r.Context().Value("userID").(string)
	role, _ := r.Context().Value("role").(string)
	if acct.OwnerUserID != userID && role != string(models.RoleAdmin) {
		SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return nil, false
	}
	return acct, true
}

func (h *AccountHandler) authorize(w http.ResponseWriter, r *http.Request, accountID string) bool {
	acct, err := h.ledger.Account(r.Context(), accountID)
	if err != nil {
		sendDomainError(w, err)
		return false
	}
	userID, _ := r.Context().Value("userID").(string)
	role, _ := r.Context().Value("role").(string)
	if acct.OwnerUserID != userID && role != string(models.RoleAdmin) {
		SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return false
	}
	return true
}
