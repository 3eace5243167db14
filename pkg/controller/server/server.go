package server

import (
	"encoding/json"
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/utils/errutil"
	"github.com/m-mizutani/hubsync/pkg/utils/logging"
)

type Server struct {
	mux *chi.Mux
}

func safeWrite(w http.ResponseWriter, code int, body []byte) {
	w.WriteHeader(code)

	// nosemgrep: go.lang.security.audit.xss.no-direct-write-to-responsewriter.no-direct-write-to-responsewriter
	// Why: The response data is not from user input
	if _, err := w.Write(body); err != nil {
		logging.Default().Error("fail to write response", slog.Any("error", err))
	}
}

type config struct {
	ghSecret types.GitHubAppSecret
}

type Option func(*config)

func WithGitHubSecret(secret types.GitHubAppSecret) Option {
	return func(cfg *config) {
		cfg.ghSecret = secret
	}
}

func New(uc interfaces.UseCase, options ...Option) *Server {
	cfg := &config{}
	for _, opt := range options {
		opt(cfg)
	}

	r := chi.NewRouter()
	r.Use(preProcess)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		safeWrite(w, http.StatusOK, []byte("ok"))
	})
	r.Route("/api", func(r chi.Router) {
		r.Route("/github", func(r chi.Router) {
			r.Post("/webhook", func(w http.ResponseWriter, r *http.Request) {
				handleGitHubWebhook(uc, cfg.ghSecret, w, r)
			})
		})
		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
				status, err := uc.SyncStatus(r.Context())
				if err != nil {
					errutil.HandleError(r.Context(), "fail to build sync status", err)
					safeWrite(w, http.StatusInternalServerError, []byte(`{"error":"internal error"}`))
					return
				}

				body, err := json.Marshal(status)
				if err != nil {
					errutil.HandleError(r.Context(), "fail to encode sync status", err)
					safeWrite(w, http.StatusInternalServerError, []byte(`{"error":"internal error"}`))
					return
				}

				w.Header().Set("Content-Type", "application/json")
				safeWrite(w, http.StatusOK, body)
			})
		})
	})

	return &Server{
		mux: r,
	}
}

func (x *Server) Mux() *chi.Mux {
	return x.mux
}
