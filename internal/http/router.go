package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/example/session-gate/internal/application"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Windows       *WindowHandler
	Access        *AccessHandler
	Conversations *ConversationHandler
	Health        Pinger
	// AdminAuth guards window management routes.
	AdminAuth  func(http.Handler) http.Handler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	admin := func(h http.HandlerFunc) http.Handler {
		if cfg.AdminAuth == nil {
			return h
		}
		return cfg.AdminAuth(h)
	}

	if cfg.Windows != nil {
		mux.HandleFunc("/windows/availability", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Windows.Availability(w, r)
		})
		mux.Handle("/windows", admin(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Windows.List(w, r)
			case http.MethodPost:
				cfg.Windows.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		}))
		mux.Handle("/windows/series", admin(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Windows.CreateSeries(w, r)
		}))
		mux.Handle("/windows/", admin(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimPrefix(r.URL.Path, "/windows/")
			if id == "" || strings.Contains(id, "/") {
				http.NotFound(w, r)
				return
			}
			ctx := ContextWithWindowID(r.Context(), id)
			r = r.WithContext(ctx)
			switch r.Method {
			case http.MethodGet:
				cfg.Windows.Get(w, r)
			case http.MethodPut:
				cfg.Windows.Update(w, r)
			case http.MethodDelete:
				cfg.Windows.Delete(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
			}
		}))
	}

	if cfg.Access != nil {
		mux.HandleFunc("/access/", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/access/")
			slug, action, _ := strings.Cut(rest, "/")
			if slug == "" {
				http.NotFound(w, r)
				return
			}
			ctx := ContextWithSlug(r.Context(), slug)
			r = r.WithContext(ctx)
			switch action {
			case "":
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Access.Resolve(w, r)
			case "authorize":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Access.Authorize(w, r)
			default:
				http.NotFound(w, r)
			}
		})
	}

	if cfg.Conversations != nil {
		mux.HandleFunc("/conversations", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Conversations.Create(w, r)
		})
		mux.HandleFunc("/conversations/", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/conversations/")
			id, action, _ := strings.Cut(rest, "/")
			if id == "" {
				http.NotFound(w, r)
				return
			}
			ctx := ContextWithConversationID(r.Context(), id)
			ctx = application.WithGrantToken(ctx, r.Header.Get(GrantTokenHeader))
			r = r.WithContext(ctx)
			switch action {
			case "":
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Conversations.Status(w, r)
			case "messages":
				switch r.Method {
				case http.MethodGet:
					cfg.Conversations.ListMessages(w, r)
				case http.MethodPost:
					cfg.Conversations.AppendMessage(w, r)
				default:
					methodNotAllowed(w, http.MethodGet, http.MethodPost)
				}
			case "close":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Conversations.Close(w, r)
			default:
				http.NotFound(w, r)
			}
		})
	}

	if cfg.Health != nil {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := cfg.Health.Ping(r.Context()); err != nil {
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
