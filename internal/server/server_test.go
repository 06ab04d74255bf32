package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/alanyoungcy/dutchescrow/internal/auction"
	"github.com/alanyoungcy/dutchescrow/internal/crypto"
	"github.com/alanyoungcy/dutchescrow/internal/domain"
	"github.com/alanyoungcy/dutchescrow/internal/server/handler"
	"github.com/alanyoungcy/dutchescrow/internal/server/ws"
	"github.com/alanyoungcy/dutchescrow/internal/service"
	"github.com/alanyoungcy/dutchescrow/internal/store/memory"
)

const (
	t0     int64 = 1_700_000_000
	apiKey       = "devnet-secret"
)

var programID = domain.MustParsePubkey("0xa000000000000000000000000000000000000000000000000000000000000002")

type env struct {
	t      *testing.T
	srv    *httptest.Server
	clock  *domain.FixedClock
	bus    *memory.SignalBus
	seller *crypto.Signer
	buyer  *crypto.Signer
	addrs  auction.Addresses
	mint   domain.Pubkey
	holder domain.Pubkey
}

func signer(t *testing.T) *crypto.Signer {
	k, err := crypto.GenerateKey()
	assert.NoError(t, err)
	return crypto.NewSigner(k)
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	e := &env{
		t:      t,
		clock:  &domain.FixedClock{At: t0},
		bus:    memory.NewSignalBus(100),
		seller: signer(t),
		buyer:  signer(t),
	}
	ledger := memory.NewLedger()
	audit := memory.NewAuditStore()
	ctrl := auction.NewController(programID, auction.DefaultRentPolicy())
	node := signer(t)

	auctions := service.NewAuctionService(ctrl, ledger, memory.NewSettlementStore(), audit, node, e.clock, service.DefaultAuctionConfig(), logger).
		WithBus(e.bus)
	accounts := service.NewAccountService(ctrl, ledger, audit, 0, logger)

	hub := ws.NewHub(e.bus, ws.Config{Channel: service.EventChannel, Stream: service.EventStream, Mode: "local", Node: node.Identity()}, logger)
	go hub.Run(ctx)

	h := Routes(Config{APIKey: apiKey, RateLimit: 1000, RateLimitWindow: time.Second}, Handlers{
		Health:      handler.NewHealthHandler("local", programID, node.Identity(), nil, e.clock, logger),
		Auctions:    handler.NewAuctionHandler(auctions, logger),
		Settlements: handler.NewSettlementHandler(auctions, logger),
		Audit:       handler.NewAuditHandler(audit, logger),
		Devnet:      handler.NewDevnetHandler(accounts, logger),
	}, hub, memory.NewRateLimiter(), logger)
	e.srv = httptest.NewServer(h)
	t.Cleanup(e.srv.Close)

	var err error
	e.addrs, err = ctrl.Derive(e.seller.Identity())
	assert.NoError(t, err)
	return e
}

func (e *env) do(method, path string, body any, headers ...string) (*http.Response, map[string]any) {
	e.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		assert.NoError(e.t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	assert.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	assert.NoError(e.t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *env) devnet(path string, body any) map[string]any {
	e.t.Helper()
	resp, out := e.do(http.MethodPost, "/api/devnet/"+path, body, "X-API-Key", apiKey)
	assert.True(e.t, resp.StatusCode < 300)
	return out
}

// fund sets up a mint, the seller's holder account with 10 tokens and SOL
// for both parties through the faucet.
func (e *env) fund() {
	e.t.Helper()
	m := e.devnet("mints", map[string]any{"authority": e.seller.Identity(), "decimals": 0})
	e.mint = domain.MustParsePubkey(m["address"].(string))
	ta := e.devnet("token-accounts", map[string]any{"owner": e.seller.Identity(), "mint": e.mint})
	e.holder = domain.MustParsePubkey(ta["address"].(string))
	e.devnet("mint-to", map[string]any{"mint": e.mint, "dest": e.holder, "amount": 10})
	e.devnet("airdrop", map[string]any{"address": e.seller.Identity(), "lamports": 10 * domain.LamportsPerSOL})
	e.devnet("airdrop", map[string]any{"address": e.buyer.Identity(), "lamports": 5 * domain.LamportsPerSOL})
}

func (e *env) signed(ins domain.Instruction, s *crypto.Signer) domain.SignedInstruction {
	ins.Nonce = uuid.NewString()
	ins.IssuedAt = e.clock.Now()
	sig, err := s.SignInstruction(ins)
	assert.NoError(e.t, err)
	return domain.SignedInstruction{Instruction: ins, Signatures: []string{sig}}
}

func (e *env) initialize() domain.SignedInstruction {
	return e.signed(domain.Instruction{
		Kind: domain.InstructionInitialize,
		Params: &domain.InitializeParams{
			StartingTime: t0,
			EndingTime:   t0 + 60,
			StartPrice:   1_000_000_000,
			Amount:       10,
		},
		Accounts: domain.AccountMetas{
			Authority:          e.seller.Identity(),
			AuctionAccount:     e.addrs.Auction,
			EscrowTokenAccount: e.addrs.Escrow,
			HolderTokenAccount: e.holder,
			Mint:               e.mint,
		},
	}, e.seller)
}

func (e *env) bid() domain.SignedInstruction {
	dest, err := auction.AssociatedTokenAddress(programID, e.buyer.Identity(), e.mint)
	assert.NoError(e.t, err)
	return e.signed(domain.Instruction{
		Kind: domain.InstructionBid,
		Accounts: domain.AccountMetas{
			Buyer:                   e.buyer.Identity(),
			AuctionOwner:            e.seller.Identity(),
			AuctionAccount:          e.addrs.Auction,
			EscrowTokenAccount:      e.addrs.Escrow,
			DestinationTokenAccount: dest,
		},
	}, e.buyer)
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	resp, body := e.do(http.MethodGet, "/api/health", nil)
	check.Equal(t, http.StatusOK, resp.StatusCode)
	check.Equal(t, "ok", body["status"].(string))
	check.Equal(t, programID.String(), body["program_id"].(string))
	check.Equal(t, float64(t0), body["ledger_now"].(float64))
	_, err := uuid.Parse(resp.Header.Get("X-Request-ID"))
	check.NoError(t, err)
}

func TestDevnetRequiresKey(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.do(http.MethodPost, "/api/devnet/airdrop", map[string]any{"address": e.buyer.Identity(), "lamports": 1})
	check.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(http.MethodPost, "/api/devnet/airdrop", map[string]any{"address": e.buyer.Identity(), "lamports": 1}, "Authorization", "Bearer "+apiKey)
	check.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuditTrail(t *testing.T) {
	e := newEnv(t)
	e.fund()
	resp, _ := e.do(http.MethodPost, "/api/auctions", e.initialize())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = e.do(http.MethodGet, "/api/audit", nil)
	check.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := e.do(http.MethodGet, "/api/audit?limit=1", nil, "X-API-Key", apiKey)
	check.Equal(t, http.StatusOK, resp.StatusCode)
	entries := body["entries"].([]any)
	assert.Equal(t, 1, len(entries))
	latest := entries[0].(map[string]any)
	check.Equal(t, string(domain.EventInitialized), latest["event"].(string))
	check.Equal(t, e.addrs.Auction.String(), latest["detail"].(map[string]any)["auction"].(string))
}

func TestAuctionLifecycle(t *testing.T) {
	e := newEnv(t)
	e.fund()

	resp, body := e.do(http.MethodGet, "/api/addresses/"+e.seller.Identity().String(), nil)
	check.Equal(t, http.StatusOK, resp.StatusCode)
	addrs := body["addresses"].(map[string]any)
	check.Equal(t, e.addrs.Auction.String(), addrs["auction"].(string))

	resp, _ = e.do(http.MethodPost, "/api/auctions", e.initialize())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = e.do(http.MethodGet, "/api/auctions", nil)
	check.Equal(t, http.StatusOK, resp.StatusCode)
	check.Equal(t, 1, len(body["auctions"].([]any)))

	e.clock.Advance(15)
	resp, body = e.do(http.MethodGet, "/api/auctions/"+e.seller.Identity().String()+"/quote", nil)
	check.Equal(t, http.StatusOK, resp.StatusCode)
	check.Equal(t, float64(750_000_000), body["price"].(float64))
	check.Equal(t, "0.75", body["price_sol"].(string))
	check.Equal(t, "open", body["phase"].(string))

	resp, body = e.do(http.MethodPost, "/api/auctions/"+e.seller.Identity().String()+"/bid", e.bid())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	st := body["settlement"].(map[string]any)
	check.Equal(t, "settled", st["kind"].(string))
	id := st["id"].(string)

	resp, body = e.do(http.MethodGet, "/api/settlements/"+id, nil)
	check.Equal(t, http.StatusOK, resp.StatusCode)
	check.Equal(t, true, body["receipt_valid"].(bool))

	resp, body = e.do(http.MethodGet, "/api/settlements?authority="+e.seller.Identity().String(), nil)
	check.Equal(t, http.StatusOK, resp.StatusCode)
	check.Equal(t, 1, len(body["settlements"].([]any)))

	resp, _ = e.do(http.MethodGet, "/api/auctions/"+e.seller.Identity().String(), nil)
	check.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = e.do(http.MethodGet, "/api/devnet/balances/"+e.buyer.Identity().String()+"?mint="+e.mint.String(), nil, "X-API-Key", apiKey)
	check.Equal(t, http.StatusOK, resp.StatusCode)
	check.Equal(t, float64(10), body["token"].(map[string]any)["amount"].(float64))
}

func TestErrorMapping(t *testing.T) {
	e := newEnv(t)
	e.fund()

	resp, _ := e.do(http.MethodPost, "/api/auctions", e.initialize())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// a second initialize for the same seller collides
	e.devnet("mint-to", map[string]any{"mint": e.mint, "dest": e.holder, "amount": 10})
	resp, _ = e.do(http.MethodPost, "/api/auctions", e.initialize())
	check.Equal(t, http.StatusConflict, resp.StatusCode)

	e.clock.Advance(61)
	resp, body := e.do(http.MethodPost, "/api/auctions/"+e.seller.Identity().String()+"/bid", e.bid())
	check.Equal(t, http.StatusConflict, resp.StatusCode)
	check.Equal(t, float64(6002), body["code"].(float64))
	check.Equal(t, "AuctionLate", body["name"].(string))

	// the path seller selects the auction record
	resp, _ = e.do(http.MethodPost, "/api/auctions/"+e.buyer.Identity().String()+"/bid", e.bid())
	check.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// a wrong owner on the right record is reported by the program
	wrongOwner := e.bid().Instruction
	wrongOwner.Accounts.AuctionOwner = e.buyer.Identity()
	resp, body = e.do(http.MethodPost, "/api/auctions/"+e.seller.Identity().String()+"/bid", e.signed(wrongOwner, e.buyer))
	check.Equal(t, http.StatusConflict, resp.StatusCode)
	check.Equal(t, float64(6005), body["code"].(float64))
	check.Equal(t, "MismatchedOwners", body["name"].(string))

	unsigned := e.bid()
	unsigned.Signatures = nil
	resp, _ = e.do(http.MethodPost, "/api/auctions/"+e.seller.Identity().String()+"/bid", unsigned)
	check.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(http.MethodGet, "/api/auctions/nothex", nil)
	check.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/api/auctions", strings.NewReader(`{"bogus":1}`))
	assert.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)
	raw.Body.Close()
	check.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestWebSocketFeed(t *testing.T) {
	e := newEnv(t)
	e.fund()

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	kind, payload := readFrame(t, conn)
	check.Equal(t, "node_status", kind)
	check.Equal(t, "local", payload["mode"].(string))

	resp, _ := e.do(http.MethodPost, "/api/auctions", e.initialize())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	kind, payload = readFrame(t, conn)
	check.Equal(t, "auction_event", kind)
	check.Equal(t, string(domain.EventInitialized), payload["type"].(string))
	check.Equal(t, e.addrs.Auction.String(), payload["auction"].(string))
}

func readFrame(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	mt, data, err := conn.ReadMessage()
	assert.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	kind, payload, err := ws.DecodeFrame(data)
	assert.NoError(t, err)
	return kind, payload
}
