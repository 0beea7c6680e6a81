package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coastledger/backend/internal/services"
)

// AdminHandler exposes the admin surface: freeze/unfreeze and full
// inspection of users and accounts. Routes using it sit behind the admin
// middleware; the ledger service itself stays role-agnostic.
type AdminHandler struct {
	ledger *services.LedgerService
}

func NewAdminHandler(ledger *services.LedgerService) *AdminHandler {
	return &AdminHandler{ledger: ledger}
}

func (h *AdminHandler) FreezeAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	if err := h.ledger.FreezeAccount(r.Context(), accountID); err != nil {
		sendDomainError(w, err)
		return
	}
	log.Printf("[ADMIN] Account frozen: %s", accountID)
	writeJSON(w, http.StatusOK, map[string]any{"account_id": accountID, "frozen": true})
}

func (h *AdminHandler) UnfreezeAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	if err := h.ledger.UnfreezeAccount(r.Context(), accountID); err != nil {
		sendDomainError(w, err)
		return
	}
	log.Printf("[ADMIN] Account unfrozen: %s", accountID)
	writeJSON(w, http.StatusOK, map[string]any{"account_id": accountID, "frozen": false})
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.ledger.AllUsers(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledger.AllAccounts(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts, "count": len(accounts)})
}
