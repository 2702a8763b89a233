// Package api provides the gRPC server for the backtest harness, exposing a
// single Backtester/Run endpoint.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"xmasladder/internal/strategy"
	"xmasladder/internal/util"
)

// Runner executes one backtest.
type Runner interface {
	Run(ctx context.Context, req strategy.Request) (*strategy.Report, error)
}

// Compile-time interface check.
var _ BacktesterServer = (*Server)(nil)

// Server is the gRPC API server.
type Server struct {
	addr     string
	runner   Runner
	defaults Defaults
	grpc     *grpc.Server
	log      *slog.Logger
}

// NewServer creates a Server that listens on addr and runs backtests with runner.
func NewServer(addr string, runner Runner, defaults Defaults, log *slog.Logger) *Server {
	s := &Server{
		addr:     addr,
		runner:   runner,
		defaults: defaults,
		grpc:     grpc.NewServer(),
		log:      util.OrDefault(log).With("component", "api"),
	}
	RegisterBacktesterServer(s.grpc, s)
	return s
}

// Run decodes a request, runs the backtest and encodes its report.
func (s *Server) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in, s.defaults)
	if err != nil {
		s.log.Warn("rejected run request", "err", err)
		return nil, statusError(err)
	}
	rep, err := s.runner.Run(ctx, req)
	if err != nil {
		s.log.Error("backtest failed", "symbol", req.Params.Symbol, "year", req.Params.Year, "err", err)
		return nil, statusError(err)
	}
	out, err := encodeReport(rep)
	if err != nil {
		return nil, statusError(fmt.Errorf("encoding report: %w", err))
	}
	return out, nil
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled or a fatal error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on lis until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("grpc server listening", "addr", lis.Addr().String())
		errCh <- s.grpc.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.Shutdown()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// Shutdown stops accepting connections and waits for in-flight runs.
func (s *Server) Shutdown() {
	s.grpc.GracefulStop()
}
