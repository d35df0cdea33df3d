// Package auth carries the caller identity asserted by the hosted auth
// provider. Identity arrives as request headers set at the edge; handlers
// receive it as an explicit Context value.
package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

type Context struct {
	UserID string
	Email  string
	Role   Role
}

func (c Context) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// CanAccess reports whether the caller may read or act on a resource owned by ownerID.
func (c Context) CanAccess(ownerID string) bool {
	return c.IsAdmin() || c.UserID == ownerID
}

func FromRequest(r *http.Request) (Context, error) {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		return Context{}, ErrUnauthenticated
	}

	role := RoleCustomer
	if Role(strings.ToLower(r.Header.Get(HeaderUserRole))) == RoleAdmin {
		role = RoleAdmin
	}

	return Context{
		UserID: userID,
		Email:  strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		Role:   role,
	}, nil
}

// Apply sets the identity headers on an outgoing request.
func (c Context) Apply(req *http.Request) {
	req.Header.Set(HeaderUserID, c.UserID)
	req.Header.Set(HeaderUserRole, string(c.Role))
	if c.Email != "" {
		req.Header.Set(HeaderUserEmail, c.Email)
	}
}

type HandlerFunc func(w http.ResponseWriter, r *http.Request, ac Context)

func Authenticated(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, err := FromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		h(w, r, ac)
	}
}

func AdminOnly(h HandlerFunc) http.HandlerFunc {
	return Authenticated(func(w http.ResponseWriter, r *http.Request, ac Context) {
		if !ac.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		h(w, r, ac)
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
