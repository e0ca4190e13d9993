package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/digicoders/feeledger/internal"
	"github.com/digicoders/feeledger/internal/transport"
)

type PermissionAuthorizer interface {
	HasPermission(ctx context.Context, userPermissions []string, permission string) (bool, error)
}

// RBACAuthorization gates routes on the permissions AuthMiddleware put in the context.
type RBACAuthorization struct {
	*transport.BaseHandler
	authorizer PermissionAuthorizer
}

func NewRBACAuthorization(authorizer PermissionAuthorizer, logger *slog.Logger) *RBACAuthorization {
	return &RBACAuthorization{
		BaseHandler: transport.NewBaseHandler(logger),
		authorizer:  authorizer,
	}
}

func (ra *RBACAuthorization) Check(next http.HandlerFunc, permission string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := internal.UserFromContext(r.Context())
		if !ok {
			ra.Logger.Warn("authorization check failed: user not found in context")
			ra.WriteAppError(w, internal.NewUnauthorizedError("Unauthorized", internal.ErrCodeInvalidToken))
			return
		}

		hasAccess, err := ra.authorizer.HasPermission(r.Context(), user.Permissions, permission)
		if err != nil {
			ra.Logger.ErrorContext(r.Context(), "authorization check failed", "error", err, "user_id", user.ID, "permission", permission)
			ra.WriteAppError(w, internal.NewInternalError("authorization check failed", err))
			return
		}

		if !hasAccess {
			ra.Logger.WarnContext(r.Context(), "access denied: insufficient permissions",
				"user_id", user.ID,
				"required_permission", permission,
				"user_permissions", user.Permissions)
			ra.WriteAppError(w, internal.ErrForbidden)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func (ra *RBACAuthorization) Middleware(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return ra.Check(next.ServeHTTP, permission)
	}
}

func (ra *RBACAuthorization) RequireRecordPayments() func(http.Handler) http.Handler {
	return ra.Middleware(PermissionRecordPayments)
}

func (ra *RBACAuthorization) RequireVerifyPayments() func(http.Handler) http.Handler {
	return ra.Middleware(PermissionVerifyPayments)
}

func (ra *RBACAuthorization) RequireDeletePayments() func(http.Handler) http.Handler {
	return ra.Middleware(PermissionDeletePayments)
}

func (ra *RBACAuthorization) RequireAdmin() func(http.Handler) http.Handler {
	return ra.Middleware(PermissionAdmin)
}
