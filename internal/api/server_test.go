package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/splitpal/splitpal/internal/app/account"
	"github.com/splitpal/splitpal/internal/app/friends"
	"github.com/splitpal/splitpal/internal/app/transactions"
	"github.com/splitpal/splitpal/internal/infra/observability"
	"github.com/splitpal/splitpal/internal/infra/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	srv := NewServer(
		account.NewService(db, db, account.NewTokenIssuer("test-secret", time.Hour)),
		friends.NewService(db),
		transactions.NewService(db),
		db,
	)
	srv.EnableMetrics()
	srv.SetCurrency("EUR")

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		db.Close()
	})
	return ts
}

// call sends a JSON request and decodes the JSON response into out.
func call(t *testing.T, ts *httptest.Server, method, path, token string, body, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, ts.URL+path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func signUp(t *testing.T, ts *httptest.Server, email, name string) account.Session {
	t.Helper()
	var sess account.Session
	code := call(t, ts, "POST", "/api/auth/signup", "", map[string]string{
		"email": email, "password": "hunter22", "displayName": name,
	}, &sess)
	if code != http.StatusCreated {
		t.Fatalf("signup %s: status %d", email, code)
	}
	return sess
}

type balances struct {
	Balances       map[string]decimal.Decimal `json:"balances"`
	TotalToReceive decimal.Decimal            `json:"total_to_receive"`
	TotalToPay     decimal.Decimal            `json:"total_to_pay"`
	Currency       string                     `json:"currency"`
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	var body map[string]string
	if code := call(t, ts, "GET", "/health", "", nil, &body); code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("GET /health = %d %v", code, body)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/me", "/api/friends", "/api/balances", "/api/transactions"} {
		if code := call(t, ts, "GET", path, "", nil, nil); code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, code)
		}
	}
	if code := call(t, ts, "GET", "/api/me", "garbage", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("GET /api/me with bad token = %d, want 401", code)
	}
}

// TestEndToEnd walks the whole flow: sign up, befriend, record
// transactions, edit one and read balances.
func TestEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	alice := signUp(t, ts, "alice@example.com", "Alice")
	bob := signUp(t, ts, "bob@example.com", "Bob")
	carol := signUp(t, ts, "carol@example.com", "Carol")
	aliceID, bobID := alice.Identity.UID, bob.Identity.UID

	// Alice adds Bob by email.
	if code := call(t, ts, "POST", "/api/friends", alice.Token, map[string]string{"email": "Bob@Example.com"}, nil); code != http.StatusCreated {
		t.Fatalf("add friend = %d, want 201", code)
	}
	if code := call(t, ts, "POST", "/api/requests", alice.Token, map[string]string{"to": bobID}, nil); code != http.StatusConflict {
		t.Errorf("duplicate request = %d, want 409", code)
	}

	var incoming struct {
		Requests []struct {
			ID         string `json:"id"`
			From       string `json:"from"`
			SenderName string `json:"senderName"`
		} `json:"requests"`
	}
	call(t, ts, "GET", "/api/requests/incoming", bob.Token, nil, &incoming)
	if len(incoming.Requests) != 1 || incoming.Requests[0].SenderName != "Alice" {
		t.Fatalf("bob incoming = %+v", incoming.Requests)
	}
	reqID := incoming.Requests[0].ID

	if code := call(t, ts, "POST", "/api/requests/"+reqID+"/accept", alice.Token, nil, nil); code != http.StatusForbidden {
		t.Errorf("sender accept = %d, want 403", code)
	}
	if code := call(t, ts, "POST", "/api/requests/"+reqID+"/accept", bob.Token, nil, nil); code != http.StatusOK {
		t.Fatalf("accept = %d, want 200", code)
	}
	if code := call(t, ts, "POST", "/api/requests/"+reqID+"/accept", bob.Token, nil, nil); code != http.StatusNotFound {
		t.Errorf("second accept = %d, want 404", code)
	}

	var fl struct {
		Friends []struct {
			UID string `json:"uid"`
		} `json:"friends"`
	}
	call(t, ts, "GET", "/api/friends", alice.Token, nil, &fl)
	if len(fl.Friends) != 1 || fl.Friends[0].UID != bobID {
		t.Errorf("alice friends = %+v", fl.Friends)
	}

	// Alice lends 50, Bob repays 20.
	var lent struct {
		ID   string `json:"id"`
		From string `json:"from"`
	}
	code := call(t, ts, "POST", "/api/transactions", alice.Token, map[string]any{
		"friend": bobID, "amount": 50, "description": "concert tickets", "type": "lend",
	}, &lent)
	if code != http.StatusCreated || lent.From != aliceID {
		t.Fatalf("create lend = %d %+v", code, lent)
	}
	if code := call(t, ts, "POST", "/api/transactions", bob.Token, map[string]any{
		"friend": aliceID, "amount": "20", "description": "partial payback", "type": "repay",
	}, nil); code != http.StatusCreated {
		t.Fatalf("create repay = %d", code)
	}

	var bal balances
	call(t, ts, "GET", "/api/balances", alice.Token, nil, &bal)
	if !bal.Balances[bobID].Equal(decimal.NewFromInt(30)) || bal.Currency != "EUR" {
		t.Errorf("alice balances = %+v, want bob=30 EUR", bal)
	}

	// Bob corrects the original amount; Carol is not a participant.
	edit := map[string]any{"friend": aliceID, "amount": 75, "description": "concert tickets", "type": "borrow"}
	if code := call(t, ts, "PUT", "/api/transactions/"+lent.ID, carol.Token, map[string]any{
		"friend": aliceID, "amount": 75, "description": "x", "type": "lend",
	}, nil); code != http.StatusForbidden {
		t.Errorf("outsider edit = %d, want 403", code)
	}
	var edited struct {
		Edit struct {
			EditorName string `json:"editedBy"`
		} `json:"edit"`
	}
	if code := call(t, ts, "PUT", "/api/transactions/"+lent.ID, bob.Token, edit, &edited); code != http.StatusOK {
		t.Fatalf("edit = %d, want 200", code)
	}
	if edited.Edit.EditorName != "Bob" {
		t.Errorf("editedBy = %q, want Bob", edited.Edit.EditorName)
	}

	call(t, ts, "GET", "/api/balances", bob.Token, nil, &bal)
	if !bal.Balances[aliceID].Equal(decimal.NewFromInt(-55)) || !bal.TotalToPay.Equal(decimal.NewFromInt(55)) {
		t.Errorf("bob balances = %+v, want alice=-55", bal)
	}

	var list struct {
		Transactions []json.RawMessage `json:"transactions"`
	}
	call(t, ts, "GET", "/api/transactions?friend="+bobID, alice.Token, nil, &list)
	if len(list.Transactions) != 2 {
		t.Errorf("alice/bob transactions = %d, want 2", len(list.Transactions))
	}
	call(t, ts, "GET", "/api/transactions", carol.Token, nil, &list)
	if len(list.Transactions) != 0 {
		t.Errorf("carol transactions = %d, want 0", len(list.Transactions))
	}
}

func TestCreateTransaction_Validation(t *testing.T) {
	ts := newTestServer(t)
	alice := signUp(t, ts, "alice@example.com", "Alice")

	tests := []struct {
		name string
		body map[string]any
	}{
		{"non-numeric amount", map[string]any{"friend": "U2", "amount": "abc", "description": "x"}},
		{"missing amount", map[string]any{"friend": "U2", "description": "x"}},
		{"missing friend", map[string]any{"amount": 5, "description": "x"}},
		{"missing description", map[string]any{"friend": "U2", "amount": 5}},
		{"unknown type", map[string]any{"friend": "U2", "amount": 5, "description": "x", "type": "gift"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := call(t, ts, "POST", "/api/transactions", alice.Token, tt.body, nil); code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", code)
			}
		})
	}
}

func TestAuthFlows(t *testing.T) {
	ts := newTestServer(t)
	alice := signUp(t, ts, "alice@example.com", "Alice")

	if code := call(t, ts, "POST", "/api/auth/signup", "", map[string]string{
		"email": "alice@example.com", "password": "hunter22",
	}, nil); code != http.StatusConflict {
		t.Errorf("duplicate signup = %d, want 409", code)
	}
	if code := call(t, ts, "POST", "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	}, nil); code != http.StatusUnauthorized {
		t.Errorf("bad login = %d, want 401", code)
	}
	if code := call(t, ts, "POST", "/api/auth/federated", "", map[string]string{"idToken": "x"}, nil); code != http.StatusNotFound {
		t.Errorf("federated without verifier = %d, want 404", code)
	}
	if code := call(t, ts, "POST", "/api/auth/verification", alice.Token, nil, nil); code != http.StatusAccepted {
		t.Errorf("send verification = %d, want 202", code)
	}
	if code := call(t, ts, "POST", "/api/auth/verify", "", map[string]string{"token": "bogus"}, nil); code != http.StatusNotFound {
		t.Errorf("verify bogus = %d, want 404", code)
	}

	var me struct {
		UID         string `json:"uid"`
		DisplayName string `json:"displayName"`
	}
	call(t, ts, "GET", "/api/me", alice.Token, nil, &me)
	if me.UID != alice.Identity.UID || me.DisplayName != "Alice" {
		t.Errorf("/api/me = %+v", me)
	}

	if code := call(t, ts, "POST", "/api/auth/logout", alice.Token, nil, nil); code != http.StatusNoContent {
		t.Fatalf("logout = %d, want 204", code)
	}
	if code := call(t, ts, "GET", "/api/me", alice.Token, nil, nil); code != http.StatusUnauthorized {
		t.Errorf("/api/me after logout = %d, want 401", code)
	}
}

func TestSearchUsers(t *testing.T) {
	ts := newTestServer(t)
	alice := signUp(t, ts, "alice@example.com", "Alice")
	signUp(t, ts, "bob@example.com", "Bob")

	var res struct {
		Users []json.RawMessage `json:"users"`
	}
	call(t, ts, "GET", "/api/users?email=BOB@example.com", alice.Token, nil, &res)
	if len(res.Users) != 1 {
		t.Errorf("search bob = %d users, want 1", len(res.Users))
	}
	call(t, ts, "GET", "/api/users?email=bob@", alice.Token, nil, &res)
	if len(res.Users) != 0 {
		t.Errorf("prefix search = %d users, want 0", len(res.Users))
	}
	if code := call(t, ts, "GET", "/api/users/nobody", alice.Token, nil, nil); code != http.StatusNotFound {
		t.Errorf("GET /api/users/nobody = %d, want 404", code)
	}
}

func TestLiveBalances(t *testing.T) {
	ts := newTestServer(t)
	alice := signUp(t, ts, "alice@example.com", "Alice")
	bob := signUp(t, ts, "bob@example.com", "Bob")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/balances/live?access_token="+alice.Token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET live: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	events := make(chan LiveEvent)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev LiveEvent
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev) == nil {
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	next := func() LiveEvent {
		t.Helper()
		select {
		case ev := <-events:
			return ev
		case <-ctx.Done():
			t.Fatal("timed out waiting for live event")
		}
		return LiveEvent{}
	}

	first := next()
	if len(first.Balances) != 0 || first.Type != "balances" {
		t.Fatalf("first event = %+v, want empty balances", first)
	}

	call(t, ts, "POST", "/api/transactions", bob.Token, map[string]any{
		"friend": alice.Identity.UID, "amount": 12.5, "description": "lunch", "type": "borrow",
	}, nil)

	for {
		ev := next()
		if b, ok := ev.Balances[bob.Identity.UID]; ok {
			if !b.Equal(decimal.RequireFromString("12.5")) {
				t.Errorf("live balance[bob] = %s, want 12.5", b)
			}
			break
		}
	}
}

func TestSendRequest_SelfWithWhitespace(t *testing.T) {
	ts := newTestServer(t)
	alice := signUp(t, ts, "alice@example.com", "Alice")

	for _, to := range []string{alice.Identity.UID, " " + alice.Identity.UID, alice.Identity.UID + "\n"} {
		if code := call(t, ts, "POST", "/api/requests", alice.Token, map[string]string{"to": to}, nil); code != http.StatusBadRequest {
			t.Errorf("request to %q = %d, want 400", to, code)
		}
	}

	var incoming struct {
		Requests []json.RawMessage `json:"requests"`
	}
	call(t, ts, "GET", "/api/requests/incoming", alice.Token, nil, &incoming)
	if len(incoming.Requests) != 0 {
		t.Errorf("alice incoming = %d requests, want 0", len(incoming.Requests))
	}
}

func TestBalances_CountsRecompute(t *testing.T) {
	ts := newTestServer(t)
	alice := signUp(t, ts, "alice@example.com", "Alice")

	before := testutil.ToFloat64(observability.LedgerRecomputes)
	if code := call(t, ts, "GET", "/api/balances", alice.Token, nil, nil); code != http.StatusOK {
		t.Fatalf("GET /api/balances = %d, want 200", code)
	}
	if after := testutil.ToFloat64(observability.LedgerRecomputes); after < before+1 {
		t.Errorf("LedgerRecomputes = %v, want at least %v", after, before+1)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	call(t, ts, "GET", "/health", "", nil, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "splitpal_http_requests_total") {
		t.Error("metrics output missing splitpal_http_requests_total")
	}
}
