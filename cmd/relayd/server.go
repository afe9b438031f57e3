// server.go - HTTP API for the relayer daemon
package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"flexanon/internal/faults"
	"flexanon/internal/flexanon"
	"flexanon/internal/ledger"
	"flexanon/internal/relay"
	"flexanon/internal/share"
)

// Server holds the HTTP layer's collaborators
type Server struct {
	svc         *flexanon.Service
	coordinator *relay.Coordinator
	oracle      ledger.Oracle
	limiter     *relay.MemoryRateLimiter
	health      *HealthChecker
	log         zerolog.Logger
}

// NewServer creates the HTTP server
func NewServer(svc *flexanon.Service, coordinator *relay.Coordinator, oracle ledger.Oracle, limiter *relay.MemoryRateLimiter, health *HealthChecker, log zerolog.Logger) *Server {
	return &Server{svc: svc, coordinator: coordinator, oracle: oracle, limiter: limiter, health: health, log: log}
}

// Router builds the gin engine with all routes registered
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	{
		api.POST("/commit", s.commit)
		api.POST("/relay/commit", s.relayCommit)
		api.GET("/share/:tokenId", s.resolveShare)
		api.POST("/share/:tokenId/revoke", s.revokeShare)
		api.GET("/wallet/:address/shares", s.listShares)
		api.GET("/wallet/:address/commitment", s.commitmentStatus)
		api.POST("/verify", s.verifyProof)
		api.GET("/relayer/stats", s.relayerStats)
	}
	router.GET("/health", s.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// commit runs the full pipeline for a caller-supplied fact-set: disclosure
// selection, tree build, relayed ledger write, and share token creation.
// The signature over the ownership message is built client-side.
func (s *Server) commit(c *gin.Context) {
	var params flexanon.CommitFactsParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "detail": err.Error()})
		return
	}

	result, err := s.svc.CommitFacts(c.Request.Context(), params)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.refreshBalanceGauge(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// relayCommit accepts a pre-signed commit request and relays it
func (s *Server) relayCommit(c *gin.Context) {
	var req relay.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "detail": err.Error()})
		return
	}

	result, err := s.svc.RelayCommit(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.refreshBalanceGauge(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// resolveShare serves a share token to a viewer
func (s *Server) resolveShare(c *gin.Context) {
	public, err := s.svc.Resolve(c.Request.Context(), c.Param("tokenId"), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, public)
}

type revokeRequest struct {
	OwnerAddress string `json:"owner_address" binding:"required"`
}

// revokeShare kills a share link; owner-only
func (s *Server) revokeShare(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_address is required"})
		return
	}
	if err := s.svc.RevokeShare(c.Request.Context(), c.Param("tokenId"), req.OwnerAddress); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// listShares returns a wallet's share tokens with view counts
func (s *Server) listShares(c *gin.Context) {
	tokens, err := s.svc.ListShares(c.Request.Context(), c.Param("address"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	type entry struct {
		TokenID           string `json:"token_id"`
		CommitmentVersion uint32 `json:"commitment_version"`
		Revoked           bool   `json:"revoked"`
		CreatedAt         string `json:"created_at"`
		RevealedCount     int    `json:"revealed_count"`
		Views             int    `json:"views"`
	}
	out := make([]entry, 0, len(tokens))
	for _, token := range tokens {
		views, err := s.svc.ViewCount(token.TokenID)
		if err != nil {
			s.writeError(c, err)
			return
		}
		out = append(out, entry{
			TokenID:           token.TokenID,
			CommitmentVersion: token.CommitmentVersion,
			Revoked:           token.Revoked,
			CreatedAt:         token.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			RevealedCount:     len(token.RevealedLeaves),
			Views:             views,
		})
	}
	c.JSON(http.StatusOK, gin.H{"shares": out})
}

type verifyRequest struct {
	MerkleRoot string           `json:"merkle_root" binding:"required"`
	Proof      share.ProofEntry `json:"proof" binding:"required"`
}

// verifyProof re-runs one inclusion proof against a caller-supplied root, so
// a viewer can check a shared leaf without trusting the relayer's resolver
func (s *Server) verifyProof(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "detail": err.Error()})
		return
	}
	if !s.svc.VerifyProof(req.MerkleRoot, req.Proof) {
		s.writeError(c, faults.Wrap(faults.ErrProofVerification, "leaf %q does not reach root %s", req.Proof.Leaf.Key, req.MerkleRoot))
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}

// commitmentStatus reads the wallet's current on-ledger record
func (s *Server) commitmentStatus(c *gin.Context) {
	record, err := s.svc.CommitmentStatus(c.Request.Context(), c.Param("address"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"owner":         record.Owner,
		"merkle_root":   record.RootHex(),
		"version":       record.Version,
		"revoked":       record.Revoked,
		"privacy_score": record.Metadata.PrivacyScore,
		"timestamp":     record.Timestamp,
	})
}

// relayerStats reports the relayer identity, balance, and rate-limit load
func (s *Server) relayerStats(c *gin.Context) {
	balance, err := s.oracle.Balance(c.Request.Context(), s.coordinator.Relayer())
	if err != nil {
		s.writeError(c, err)
		return
	}
	relay.RelayerBalance.Set(float64(balance))
	c.JSON(http.StatusOK, gin.H{
		"relayer":            s.coordinator.Relayer(),
		"balance":            balance,
		"submission_fee":     ledger.SubmissionFee,
		"tracked_identities": s.limiter.Tracked(),
	})
}

// healthCheck runs all component checks
func (s *Server) healthCheck(c *gin.Context) {
	health := s.health.CheckHealth()
	code := http.StatusOK
	if health.OverallStatus == Unhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, health)
}

// refreshBalanceGauge updates the balance gauge after a fee-paying write
func (s *Server) refreshBalanceGauge(c *gin.Context) {
	balance, err := s.oracle.Balance(c.Request.Context(), s.coordinator.Relayer())
	if err == nil {
		relay.RelayerBalance.Set(float64(balance))
	}
}

// writeError maps the error taxonomy to HTTP statuses. Stale shares and
// revoked shares are distinct conditions and get distinct statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, faults.ErrValidation):
		status, kind = http.StatusBadRequest, "validation"
	case errors.Is(err, faults.ErrAuthentication):
		status, kind = http.StatusUnauthorized, "authentication"
	case errors.Is(err, faults.ErrRateLimit):
		status, kind = http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, faults.ErrInsufficientRelayBalance):
		status, kind = http.StatusServiceUnavailable, "insufficient_relayer_balance"
	case errors.Is(err, faults.ErrRecordNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, faults.ErrVersionMismatch):
		status, kind = http.StatusConflict, "stale"
	case errors.Is(err, faults.ErrRevoked):
		status, kind = http.StatusGone, "revoked"
	case errors.Is(err, faults.ErrProofVerification):
		status, kind = http.StatusUnprocessableEntity, "proof_verification"
	case errors.Is(err, faults.ErrMalformedRecord), errors.Is(err, faults.ErrLedger):
		status, kind = http.StatusBadGateway, "ledger_error"
	}
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": kind, "detail": err.Error()})
}
