package rest

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/digicoders/feeledger/internal/auth"
	"github.com/digicoders/feeledger/internal/fee"
	"github.com/digicoders/feeledger/internal/registration"
	"github.com/digicoders/feeledger/internal/technology"
	"github.com/digicoders/feeledger/internal/transport/middleware"
	"github.com/digicoders/feeledger/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

type RouterConfig struct {
	AllowedOrigins string
	OpenAPIPath    string
	UploadDir      string
	UploadURLPath  string
}

type Handlers struct {
	Auth         *auth.Handler
	Registration *registration.Handler
	Fee          *fee.Handler
	Technology   *technology.Handler
	RBAC         *auth.RBACAuthorization
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, cfg RouterConfig, h Handlers, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	openAPIPath := cfg.OpenAPIPath
	if openAPIPath == "" {
		openAPIPath = "./api/openapi.yml"
	}
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, openAPIPath)
	})
	if doc, err := swagger.LoadSpec(context.Background(), openAPIPath); err != nil {
		logger.Warn("openapi document not served as json", "path", openAPIPath, "error", err)
	} else {
		router.Get("/openapi.json", swagger.SpecHandler(doc))
	}
	router.Handle("/swagger/*", swagger.Handler())

	if cfg.UploadDir != "" && cfg.UploadURLPath != "" {
		prefix := cfg.UploadURLPath + "/"
		router.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.UploadDir))))
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if h.Auth == nil {
			return
		}

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", h.Auth.Login)
			sr.Post("/refresh", h.Auth.RefreshToken)
			sr.With(h.Auth.AuthMiddleware).Get("/me", h.Auth.Me)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)
			rbac := h.RBAC

			if h.Technology != nil {
				pr.Route("/technologies", func(tr chi.Router) {
					tr.Get("/", h.Technology.ListTechnologies)
					tr.Get("/{id}", h.Technology.GetTechnology)
					tr.With(rbac.RequireAdmin()).Post("/", h.Technology.CreateTechnology)
					tr.With(rbac.RequireAdmin()).Delete("/{id}", h.Technology.DeactivateTechnology)
				})
			}

			if h.Registration != nil {
				pr.Route("/registrations", func(rr chi.Router) {
					rr.With(rbac.Middleware(auth.PermissionManageRegistrations)).Post("/", h.Registration.Enroll)
					rr.With(rbac.Middleware(auth.PermissionViewPayments)).Get("/{id}", h.Registration.GetRegistration)
				})
			}

			if h.Fee != nil {
				pr.Route("/payments", func(fr chi.Router) {
					fr.Group(func(vr chi.Router) {
						vr.Use(rbac.Middleware(auth.PermissionViewPayments))
						vr.Get("/", h.Fee.ListPayments)
						vr.Get("/{id}", h.Fee.GetFeeByID)
						vr.Get("/{id}/history", h.Fee.GetPaymentHistory)
						if h.Registration != nil {
							vr.Get("/{id}/dues", h.Registration.CheckDues)
						}
					})

					fr.With(rbac.RequireRecordPayments()).Post("/", h.Fee.RecordPayment)
					fr.With(rbac.RequireVerifyPayments()).Patch("/{id}/status", h.Fee.ChangeStatus)
					fr.With(rbac.RequireDeletePayments()).Delete("/{id}", h.Fee.DeletePayment)
				})
			}
		})
	})
}
