package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"privacypool/internal/keystore"
	"privacypool/internal/poolerr"
)

type seedRequest struct {
	Seed string `json:"seed" binding:"required"`
}

type unlockRequest struct {
	Password string `json:"password" binding:"required"`
}

// GET /session
func (s *Server) sessionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"unlocked": s.deps.Session.Unlocked()})
}

// POST /session/seed
func (s *Server) setSeed(c *gin.Context) {
	var in seedRequest
	if err := bindJSON(c, &in); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.deps.Session.Unlock(in.Seed); err != nil {
		s.fail(c, err)
		return
	}
	s.audit("seed_unlocked", map[string]interface{}{"method": "seed", "ip": c.ClientIP()})
	c.JSON(http.StatusOK, gin.H{"unlocked": true})
}

// POST /session/unlock
func (s *Server) unlockKeystore(c *gin.Context) {
	var in unlockRequest
	if err := bindJSON(c, &in); err != nil {
		s.badRequest(c, err)
		return
	}
	if s.deps.KeystorePath == "" {
		s.fail(c, poolerr.Wrap(poolerr.NotFound, errNoKeystore, "keystore unavailable"))
		return
	}
	ks, err := keystore.Load(s.deps.KeystorePath)
	if err != nil {
		s.fail(c, poolerr.Wrap(poolerr.NotFound, err, "keystore unavailable"))
		return
	}
	seedHex, err := ks.Decrypt(in.Password)
	if err != nil {
		if errors.Is(err, keystore.ErrBadPassword) {
			s.audit("seed_unlock_failed", map[string]interface{}{"ip": c.ClientIP()})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		s.fail(c, err)
		return
	}
	if err := s.deps.Session.Unlock(seedHex); err != nil {
		s.fail(c, err)
		return
	}
	s.audit("seed_unlocked", map[string]interface{}{"method": "keystore", "ip": c.ClientIP()})
	c.JSON(http.StatusOK, gin.H{"unlocked": true})
}

// DELETE /session
func (s *Server) lock(c *gin.Context) {
	s.deps.Session.Lock()
	s.audit("seed_locked", map[string]interface{}{"ip": c.ClientIP()})
	c.Status(http.StatusNoContent)
}
