package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

func readBody(c *gin.Context) (json.RawMessage, error) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 && !json.Valid(raw) {
		return nil, errInvalidJSON
	}
	return raw, nil
}

// POST /pool/execute
func (s *Server) executeTransaction(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	hash, err := s.deps.Pool.ExecuteTransaction(c.Request.Context(), body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hash": hash})
}

func (s *Server) passthrough(call func(context.Context, json.RawMessage) (json.RawMessage, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := readBody(c)
		if err != nil {
			s.badRequest(c, err)
			return
		}
		data, err := call(c.Request.Context(), body)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": data})
	}
}

func (s *Server) tokenInfo(call func(context.Context, string) (json.RawMessage, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := call(c.Request.Context(), c.Param("address"))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": data})
	}
}
