package relay

import (
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
)

// Listener is a running relay gRPC server.
type Listener struct {
	gs  *grpc.Server
	lis net.Listener
	log *slog.Logger
}

// Listen serves a relay for src on addr in the background.
func Listen(addr string, src Source, log *slog.Logger) (*Listener, error) {
	if log == nil {
		log = slog.Default()
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := grpc.NewServer()
	NewServer(src, log).RegisterGRPC(gs)

	l := &Listener{gs: gs, lis: lis, log: log}
	go func() {
		log.Info("relay listening", "addr", lis.Addr().String())
		if err := gs.Serve(lis); err != nil {
			log.Error("relay server error", "error", err)
		}
	}()
	return l, nil
}

// Addr returns the bound address, useful when addr had port 0.
func (l *Listener) Addr() string { return l.lis.Addr().String() }

// Stop lets open streams finish for up to grace, then closes them.
func (l *Listener) Stop(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		l.gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		l.log.Warn("relay viewers still connected, closing")
		l.gs.Stop()
	}
}
