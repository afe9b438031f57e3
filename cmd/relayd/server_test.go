package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flexanon/internal/flexanon"
	"flexanon/internal/ledger"
	"flexanon/internal/merkle"
	"flexanon/internal/ownership"
	"flexanon/internal/portfolio"
	"flexanon/internal/relay"
	"flexanon/internal/share"
)

type serverEnv struct {
	server *Server
	router http.Handler
	svc    *flexanon.Service
	owner  *ownership.Keypair
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()

	oracle := ledger.NewFileLedger("", zerolog.Nop())
	relayer, err := ownership.GenerateKeypair()
	require.NoError(t, err)
	oracle.Fund(relayer.Address(), 100*ledger.SubmissionFee)

	limiter := relay.NewMemoryRateLimiter(relay.DefaultRateLimitWindow)
	coordinator := relay.NewCoordinator(oracle, relayer, limiter, 0, zerolog.Nop())

	store, err := share.OpenStore("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	shares := share.NewService(store, oracle, zerolog.Nop())

	svc := flexanon.NewService(&portfolio.MockProvider{}, coordinator, shares, oracle, "solana", zerolog.Nop())

	owner, err := ownership.GenerateKeypair()
	require.NoError(t, err)

	health := NewHealthChecker(version)
	server := NewServer(svc, coordinator, oracle, limiter, health, zerolog.Nop())
	return &serverEnv{server: server, router: server.Router(), svc: svc, owner: owner}
}

func (e *serverEnv) postJSON(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *serverEnv) commit(t *testing.T) (*flexanon.CommitResult, *share.PublicShare) {
	t.Helper()
	ctx := context.Background()
	result, err := e.svc.Commit(ctx, flexanon.CommitParams{
		Wallet: e.owner,
		Preferences: portfolio.Preferences{
			ShowTotalValue: true,
			ShowTopAssets:  true,
			TopAssetsCount: 2,
		},
	})
	require.NoError(t, err)
	public, err := e.svc.Resolve(ctx, result.TokenID, "203.0.113.5", "go-test")
	require.NoError(t, err)
	return result, public
}

func TestVerifyEndpoint(t *testing.T) {
	env := newServerEnv(t)
	_, public := env.commit(t)
	require.NotEmpty(t, public.ProofData)

	t.Run("valid proof verifies", func(t *testing.T) {
		rec := env.postJSON(t, "/api/verify", verifyRequest{
			MerkleRoot: public.OnLedger.Root,
			Proof:      public.ProofData[0],
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Verified bool `json:"verified"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Verified)
	})

	t.Run("forged value rejected", func(t *testing.T) {
		forged := public.ProofData[0]
		forged.Leaf = merkle.Leaf{Key: forged.Leaf.Key, Value: merkle.Hash("99999")}
		rec := env.postJSON(t, "/api/verify", verifyRequest{
			MerkleRoot: public.OnLedger.Root,
			Proof:      forged,
		})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var body struct {
			Error string `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "proof_verification", body.Error)
	})

	t.Run("missing root rejected", func(t *testing.T) {
		rec := env.postJSON(t, "/api/verify", verifyRequest{Proof: public.ProofData[0]})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRelayerStatsReportsTrackedIdentities(t *testing.T) {
	env := newServerEnv(t)

	readStats := func() map[string]json.RawMessage {
		req := httptest.NewRequest(http.MethodGet, "/api/relayer/stats", nil)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	assert.Equal(t, "0", string(readStats()["tracked_identities"]))

	env.commit(t)
	assert.Equal(t, "1", string(readStats()["tracked_identities"]))
}
