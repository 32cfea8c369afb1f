/*
Package auth defines the resolved caller identity, the permission model and the
explicit guard used in front of privileged handlers.

Token validation lives in the jwt subpackage; everything else in the service only
sees an *Identity.
*/
package auth

import (
	"context"
	"errors"
	"slices"
	"strings"
)

// Permission is an elevated capability carried in the identity token.
type Permission string

const (
	PermissionPermissions                  Permission = "Permissions"
	PermissionModeration                   Permission = "Moderation"
	PermissionQueue                        Permission = "Queue"
	PermissionLogs                         Permission = "Logs"
	PermissionMaps                         Permission = "Maps"
	PermissionTournaments                  Permission = "Tournaments"
	PermissionContent                      Permission = "Content"
	PermissionProxies                      Permission = "Proxies"
	PermissionSmurfCheckerQuery            Permission = "SmurfCheckerQuery"
	PermissionSmurfCheckerQueryExplanation Permission = "SmurfCheckerQueryExplanation"
	PermissionSmurfCheckerAdministration   Permission = "SmurfCheckerAdministration"
)

var knownPermissions = []Permission{
	PermissionPermissions,
	PermissionModeration,
	PermissionQueue,
	PermissionLogs,
	PermissionMaps,
	PermissionTournaments,
	PermissionContent,
	PermissionProxies,
	PermissionSmurfCheckerQuery,
	PermissionSmurfCheckerQueryExplanation,
	PermissionSmurfCheckerAdministration,
}

// ParsePermission maps a claim value to a Permission, case-insensitively.
func ParsePermission(s string) (Permission, bool) {
	for _, p := range knownPermissions {
		if strings.EqualFold(string(p), s) {
			return p, true
		}
	}
	return "", false
}

var (
	// ErrUnauthenticated means no valid identity was presented.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the identity lacks the required permission.
	ErrForbidden = errors.New("forbidden")
)

// Identity is the authenticated caller.
type Identity struct {
	BattleTag   string
	Name        string
	IsAdmin     bool
	Permissions []Permission
}

// Has reports whether the identity carries p.
func (i *Identity) Has(p Permission) bool {
	return i != nil && slices.Contains(i.Permissions, p)
}

// Authenticator resolves a credential into an identity.
type Authenticator interface {
	ResolveIdentity(ctx context.Context, credential string) (*Identity, error)
}

// Check returns nil if caller holds perm, ErrUnauthenticated for a nil caller
// and ErrForbidden otherwise.
func Check(caller *Identity, perm Permission) error {
	if caller == nil {
		return ErrUnauthenticated
	}
	if !caller.Has(perm) {
		return ErrForbidden
	}
	return nil
}

// Guard wraps a privileged handler so it only runs for callers holding perm.
func Guard[T any](perm Permission, next func(ctx context.Context, caller *Identity, arg T) error) func(ctx context.Context, caller *Identity, arg T) error {
	return func(ctx context.Context, caller *Identity, arg T) error {
		if err := Check(caller, perm); err != nil {
			return err
		}
		return next(ctx, caller, arg)
	}
}

type contextKey string

const identityKey contextKey = "auth_identity"

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity stored by WithIdentity, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}
