package api

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/nerrad567/gray-logic-leap/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// ticketEntry is the identity a WebSocket ticket stands for.
type ticketEntry struct {
	subject string
	role    auth.Role
}

// ticketMu makes lookup and removal of a ticket one step, so a ticket
// cannot be redeemed twice by concurrent upgrades.
var ticketMu sync.Mutex

// handleWSTicket generates a single-use WebSocket authentication ticket.
// The client uses this ticket to authenticate the WebSocket connection
// without exposing the JWT in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "bearer token required")
		return
	}

	ticket := generateTicket()
	s.tickets.Set(ticket, ticketEntry{
		subject: claims.Subject,
		role:    claims.Role,
	}, ttlcache.DefaultTTL)

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// redeemTicket consumes a ticket and returns the identity it was issued
// for. Expired and unknown tickets are rejected.
func (s *Server) redeemTicket(ticket string) (ticketEntry, bool) {
	ticketMu.Lock()
	defer ticketMu.Unlock()

	item := s.tickets.Get(ticket)
	if item == nil || item.IsExpired() {
		return ticketEntry{}, false
	}
	s.tickets.Delete(ticket)
	return item.Value(), true
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}
