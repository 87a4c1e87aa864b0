package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"privacypool/internal/operation"
	"privacypool/internal/poolerr"
	"privacypool/internal/wallet"
)

type createRequest struct {
	Metadata operation.Metadata `json:"metadata"`
}

// POST /operations
func (s *Server) createOperation(c *gin.Context) {
	var in createRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &in); err != nil {
			s.badRequest(c, err)
			return
		}
	}
	op, err := s.deps.Wallet.Generate(in.Metadata)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, op)
}

// POST /operations/import
func (s *Server) importOperation(c *gin.Context) {
	var in wallet.ImportRequest
	if err := bindJSON(c, &in); err != nil {
		s.badRequest(c, err)
		return
	}
	op, err := s.deps.Wallet.Import(in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, op)
}

// GET /operations/:id
func (s *Server) getOperation(c *gin.Context) {
	op, pool, err := s.deps.Wallet.Find(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pool": pool, "operation": op})
}

// POST /operations/:id/{confirm,abort,nullify}
func (s *Server) transition(move func(id string) (operation.Operation, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		op, err := move(c.Param("id"))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, op)
	}
}

// GET /pools/:pool
func (s *Server) listPool(c *gin.Context) {
	p := operation.Pool(c.Param("pool"))
	if !p.Valid() {
		s.fail(c, poolerr.New(poolerr.InvalidRequest, "unknown pool %q", p))
		return
	}
	ops, err := s.deps.Wallet.List(p)
	if err != nil {
		s.fail(c, err)
		return
	}
	if ops == nil {
		ops = []operation.Operation{}
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}
