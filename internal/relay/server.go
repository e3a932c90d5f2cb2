package relay

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"backdash/internal/lifecycle"
)

// Source is what the relay mirrors. *lifecycle.Controller satisfies it.
type Source interface {
	Snapshot() lifecycle.Snapshot
	Subscribe(bufSize int) (int, <-chan lifecycle.Snapshot)
	Unsubscribe(id int)
}

// Server implements the WatchRun gRPC endpoint.
type Server struct {
	src Source
	log *slog.Logger
}

// NewServer creates a relay server over src.
func NewServer(src Source, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{src: src, log: log}
}

// RegisterGRPC registers the relay on the given gRPC server instance.
func (s *Server) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// WatchRun sends the current snapshot, then every change, until the watched
// run reaches a terminal state or the client disconnects. The optional
// run_id field restricts the stream to one run.
func (s *Server) WatchRun(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	runID := req.GetFields()["run_id"].GetStringValue()

	// Subscribe before reading the current snapshot so nothing falls between.
	subID, ch := s.src.Subscribe(64)
	defer s.src.Unsubscribe(subID)
	s.log.Info("relay viewer subscribed", "subID", subID, "run_id", runID)

	var last lifecycle.Snapshot
	sent := false
	// send forwards the latest snapshot. Events only signal a change, so a
	// dropped event never hides the final state. It reports whether the
	// stream is finished.
	send := func() (bool, error) {
		snap := s.src.Snapshot()
		if runID != "" && snap.RunID != runID {
			return false, nil
		}
		if sent && snap.ObservedAt.Equal(last.ObservedAt) && snap.State == last.State {
			return false, nil
		}
		msg, err := encode(snap)
		if err != nil {
			return false, err
		}
		if err := stream.Send(msg); err != nil {
			return false, err
		}
		last, sent = snap, true
		return snap.State.Terminal(), nil
	}

	if done, err := send(); done || err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("relay viewer disconnected", "subID", subID)
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			if done, err := send(); done || err != nil {
				return err
			}
		}
	}
}
