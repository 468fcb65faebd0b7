package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/splitpal/splitpal/internal/app/account"
	"github.com/splitpal/splitpal/internal/app/ledger"
	"github.com/splitpal/splitpal/internal/app/transactions"
	"github.com/splitpal/splitpal/internal/domain"
	"github.com/splitpal/splitpal/internal/infra/observability"
)

// ─── Auth Handlers ──────────────────────────────────────────────────────────

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	sess, err := s.accounts.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	sess, err := s.accounts.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleFederated(w http.ResponseWriter, r *http.Request) {
	if s.federated == nil {
		writeError(w, http.StatusNotFound, "federated sign-in is not configured")
		return
	}
	var req struct {
		IDToken string `json:"idToken"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	fc, err := s.federated.Verify(req.IDToken)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	sess, err := s.accounts.SignInWithProvider(r.Context(), fc)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := r.Context().Value(tokenKey).(string)
	if err := s.accounts.SignOut(r.Context(), token); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendVerification(w http.ResponseWriter, r *http.Request) {
	if _, err := s.accounts.SendVerification(r.Context(), callerID(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	uid, err := s.accounts.ConfirmVerification(r.Context(), req.Token)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"uid": uid, "verified": true})
}

// ─── Profile Handlers ───────────────────────────────────────────────────────

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, err := s.callerProfile(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	email := account.NormalizeEmail(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "email query parameter is required")
		return
	}
	users, err := s.friends.SearchByEmail(r.Context(), email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	p, err := s.friends.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ─── Friend Handlers ────────────────────────────────────────────────────────

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	list, err := s.friends.ListFriends(r.Context(), callerID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"friends": list})
}

func (s *Server) handleAddFriend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	me, err := s.callerProfile(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	res, err := s.friends.AddFriendByEmail(r.Context(), me, account.NormalizeEmail(req.Email))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if res.Request != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (s *Server) handleIncomingRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.friends.IncomingRequests(r.Context(), callerID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (s *Server) handleSentRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.friends.SentRequests(r.Context(), callerID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (s *Server) handleSendRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To string `json:"to"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	me, err := s.callerProfile(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	to := strings.TrimSpace(req.To)
	if to == me.UID {
		writeError(w, http.StatusBadRequest, "cannot send a friend request to yourself")
		return
	}
	fr, err := s.friends.SendRequest(r.Context(), me.UID, me, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fr)
}

// handleAcceptRequest lets the recipient accept. The sender and recipient
// ids come from the stored request, not the client.
func (s *Server) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fr, err := s.friends.GetRequest(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if fr.To != callerID(r) {
		writeError(w, http.StatusForbidden, "only the recipient can accept a friend request")
		return
	}
	if err := s.friends.AcceptRequest(r.Context(), fr.ID, fr.From, fr.To); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accepted": true, "friend": fr.From})
}

// ─── Transaction Handlers ───────────────────────────────────────────────────

// txRequest is a transaction as the caller frames it: the caller lends to,
// borrows from or repays friend. Orientation happens server-side.
type txRequest struct {
	Friend      string `json:"friend"`
	Amount      any    `json:"amount"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

func (req txRequest) draft(callerID string) (transactions.Draft, error) {
	amount, err := domain.ParseAmountStrict(req.Amount)
	if err != nil {
		return transactions.Draft{}, err
	}
	typ := domain.TxType(strings.ToLower(strings.TrimSpace(req.Type)))
	if typ == "" {
		typ = domain.TxLend
	}
	friend := strings.TrimSpace(req.Friend)
	from, to := domain.Orient(callerID, friend, typ)
	if friend == "" {
		from, to = "", ""
	}
	return transactions.Draft{
		From:        from,
		To:          to,
		Amount:      amount,
		Description: req.Description,
		Type:        typ,
	}, nil
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	var (
		list []domain.Transaction
		err  error
	)
	if friend := r.URL.Query().Get("friend"); friend != "" {
		list, err = s.txs.ListWithFriend(r.Context(), callerID(r), friend)
	} else {
		list, err = s.txs.ListForUser(r.Context(), callerID(r))
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": list})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req txRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	d, err := req.draft(callerID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	tx, err := s.txs.Create(r.Context(), d)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req txRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	d, err := req.draft(callerID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	me, err := s.callerProfile(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	tx, err := s.txs.Update(r.Context(), chi.URLParam(r, "id"), d, me.UID, me.Name())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// ─── Balances ───────────────────────────────────────────────────────────────

type balancesResponse struct {
	ledger.Summary
	Currency string `json:"currency"`
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	list, err := s.txs.ListForUser(r.Context(), callerID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	summary := ledger.Compute(list, callerID(r))
	observability.LedgerRecomputes.Inc()
	writeJSON(w, http.StatusOK, balancesResponse{
		Summary:  summary,
		Currency: s.currency,
	})
}
