// server.go - HTTP API of the controller.
//
// The API is the only surface callers see: session unlock, operation
// lifecycle, pool service passthrough and the proof request flow. Failures are
// rendered as {"error": "<message>"} with a status derived from the error kind.

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"privacypool/internal/metrics"
	"privacypool/internal/poolclient"
	"privacypool/internal/poolerr"
	"privacypool/internal/proof"
	"privacypool/internal/session"
	"privacypool/internal/wallet"
)

// Deps are the services the API exposes.
type Deps struct {
	Session      *session.Session
	Wallet       *wallet.Wallet
	Proofs       *proof.Controller
	Pool         *poolclient.Client
	KeystorePath string
	Auditor      proof.Auditor
}

// Server wires handlers onto a gin engine.
type Server struct {
	deps   Deps
	engine *gin.Engine
	log    zerolog.Logger
}

// NewServer builds the router. Extra middleware runs before every handler.
func NewServer(deps Deps, log zerolog.Logger, middleware ...gin.HandlerFunc) *Server {
	s := &Server{
		deps:   deps,
		engine: gin.New(),
		log:    log.With().Str("component", "api").Logger(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.engine.Use(middleware...)
	s.routes()
	return s
}

// Engine exposes the router so callers can mount extra routes.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	r := s.engine

	sess := r.Group("/session")
	sess.GET("", s.sessionStatus)
	sess.POST("/seed", s.setSeed)
	sess.POST("/unlock", s.unlockKeystore)
	sess.DELETE("", s.lock)

	ops := r.Group("/operations")
	ops.POST("", s.createOperation)
	ops.POST("/import", s.importOperation)
	ops.GET("/:id", s.getOperation)
	ops.POST("/:id/confirm", s.transition(s.deps.Wallet.Confirm))
	ops.POST("/:id/abort", s.transition(s.deps.Wallet.Abort))
	ops.POST("/:id/nullify", s.transition(s.deps.Wallet.Nullify))
	r.GET("/pools/:pool", s.listPool)

	pool := r.Group("/pool")
	pool.POST("/execute", s.executeTransaction)
	pool.POST("/proof-data", s.passthrough(s.deps.Pool.GetProofData))
	pool.POST("/fee", s.passthrough(s.deps.Pool.GetTransactionFee))
	r.GET("/tokens/:address/decimals", s.tokenInfo(s.deps.Pool.GetTokenDecimals))
	r.GET("/tokens/:address/name", s.tokenInfo(s.deps.Pool.GetTokenName))

	proofs := r.Group("/proofs")
	proofs.POST("", s.requestProof)
	proofs.GET("/staged", s.stagedProof)
	proofs.POST("/staged/approve", s.approveProof)
	proofs.POST("/staged/reject", s.rejectProof)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()

		ev := s.log.Debug()
		if status >= http.StatusInternalServerError {
			ev = s.log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Str("ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("http_request")
	}
}

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	switch poolerr.KindOf(err) {
	case poolerr.SeedLocked:
		return http.StatusLocked
	case poolerr.NotFound, poolerr.DepositNotFound, poolerr.RefundNotFound, poolerr.NoStagedRequest:
		return http.StatusNotFound
	case poolerr.InvalidCommitment, poolerr.InvalidRequest:
		return http.StatusBadRequest
	case poolerr.StagingBusy, poolerr.ProofRejected, poolerr.SessionClosed:
		return http.StatusConflict
	case poolerr.ApprovalExpired:
		return http.StatusGone
	case poolerr.ProofFailed:
		return http.StatusUnprocessableEntity
	case poolerr.ProverUnavailable, poolerr.Network:
		return http.StatusServiceUnavailable
	case poolerr.Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// bindJSON decodes the request body into v. Numbers stay json.Number so
// amounts and field elements are never rounded through float64.
func bindJSON(c *gin.Context, v any) error {
	if c.Request.Body == nil {
		return errInvalidJSON
	}
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return binding.Validator.ValidateStruct(v)
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.fail(c, poolerr.Wrap(poolerr.InvalidRequest, err, "invalid request body"))
}

func (s *Server) audit(event string, details map[string]interface{}) {
	if s.deps.Auditor != nil {
		s.deps.Auditor.Audit(event, details)
	}
}

var (
	errNoKeystore  = errors.New("no keystore configured")
	errInvalidJSON = errors.New("body is not valid JSON")
)
