package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"privacypool/internal/proof"
)

type decisionRequest struct {
	ID string `json:"id"`
}

// POST /proofs holds the request open until the proof is delivered, rejected
// or expires.
func (s *Server) requestProof(c *gin.Context) {
	var ask proof.Ask
	if err := bindJSON(c, &ask); err != nil {
		s.badRequest(c, err)
		return
	}
	calldata, err := s.deps.Proofs.RequestProof(c.Request.Context(), ask)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proof": calldata})
}

// GET /proofs/staged returns the full staged request for inspection.
func (s *Server) stagedProof(c *gin.Context) {
	req, err := s.deps.Proofs.Staged()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func bindDecision(c *gin.Context) (decisionRequest, error) {
	var in decisionRequest
	if c.Request.ContentLength == 0 {
		return in, nil
	}
	err := bindJSON(c, &in)
	return in, err
}

// POST /proofs/staged/approve
func (s *Server) approveProof(c *gin.Context) {
	in, err := bindDecision(c)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	taken, err := s.deps.Proofs.Approve(c.Request.Context(), in.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"approved": taken})
}

// POST /proofs/staged/reject
func (s *Server) rejectProof(c *gin.Context) {
	in, err := bindDecision(c)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.deps.Proofs.Reject(in.ID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rejected": true})
}
