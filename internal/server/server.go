package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"aura/internal/chat"
)

// Server defines fields used in HTTP processing
type Server struct {
	logger        *zap.SugaredLogger
	httpServer    *http.Server
	h             handler
	afterShutdown []func()
}

// NewServer returns a new Server exposing the chat engine over POST+JSON
// endpoints with the provided zap.SugaredLogger
func NewServer(logger *zap.SugaredLogger, engine *chat.Engine, opts ...Option) (*Server, error) {
	srv := &Server{
		logger: logger,
		h: handler{
			logger: logger,
			engine: engine,
		},
	}

	wrap := func(hf http.HandlerFunc) http.Handler {
		return enforcePostJson(log(hf, logger.Desugar()))
	}

	mux := http.NewServeMux()
	mux.Handle("/auth/register", wrap(srv.h.register))
	mux.Handle("/auth/login", wrap(srv.h.login))
	mux.Handle("/auth/guest", wrap(srv.h.guest))
	mux.Handle("/auth/logout", wrap(srv.h.logout))
	mux.Handle("/auth/password", wrap(srv.h.changePassword))
	mux.Handle("/chat/refresh", wrap(srv.h.refresh))
	mux.Handle("/chat/post", wrap(srv.h.post))
	mux.Handle("/chat/react", wrap(srv.h.react))
	mux.Handle("/admin/chat/mute", wrap(srv.h.muteChat))
	mux.Handle("/admin/chat/unmute", wrap(srv.h.unmuteChat))
	mux.Handle("/admin/guest-login", wrap(srv.h.setGuestLogin))
	mux.Handle("/admin/users", wrap(srv.h.users))
	mux.Handle("/admin/users/mute", wrap(srv.h.muteUser))
	mux.Handle("/admin/users/unmute", wrap(srv.h.unmuteUser))
	mux.Handle("/admin/users/ban", wrap(srv.h.ban))
	mux.Handle("/admin/users/unban", wrap(srv.h.unban))
	mux.Handle("/admin/users/reset-password", wrap(srv.h.resetPassword))
	mux.Handle("/admin/messages/clear", wrap(srv.h.clearMessages))

	srv.httpServer = &http.Server{
		Addr:    "0.0.0.0:9000",
		Handler: mux,
	}

	for _, opt := range opts {
		opt.apply(srv)
	}

	return srv, nil
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	for _, f := range s.afterShutdown {
		f()
	}

	return nil
}
