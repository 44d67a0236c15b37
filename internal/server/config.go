package server

import (
	"strconv"
	"time"
)

// EnvConfig defines fields used for parsing from environment variables
type EnvConfig struct {
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port uint16 `env:"PORT" envDefault:"9000"`
}

type Option interface {
	apply(*Server)
}

type optionFunc func(s *Server)

func (f optionFunc) apply(s *Server) { f(s) }

// WithEnvConfig enables processing exported EnvConfig struct to act as a source of config parameters for http.Server
func WithEnvConfig(cfg EnvConfig) Option {
	return optionFunc(func(s *Server) {
		s.httpServer.Addr = cfg.Host + ":" + strconv.FormatUint(uint64(cfg.Port), 10)
	})
}

// ReadTimeout sets read timeout for http.Server
func ReadTimeout(d time.Duration) Option {
	return optionFunc(func(s *Server) {
		s.httpServer.ReadTimeout = d
	})
}

// RegisterAfterShutdown registers a function to call after http.Server shutdown
// f will not be called in a separated goroutine
func RegisterAfterShutdown(f func()) Option {
	return optionFunc(func(s *Server) {
		s.afterShutdown = append(s.afterShutdown, f)
	})
}
