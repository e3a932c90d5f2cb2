// Package relay mirrors run lifecycle snapshots to other local viewers over
// a gRPC server stream. Messages are google.protobuf.Struct, so no generated
// code is involved.
package relay

import (
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"backdash/internal/domain"
	"backdash/internal/lifecycle"
)

const (
	ServiceName    = "backdash.relay.v1.RunRelay"
	watchRunMethod = "/" + ServiceName + "/WatchRun"
)

// runWatcher is the handler type behind serviceDesc.
type runWatcher interface {
	WatchRun(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*runWatcher)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchRun",
			Handler:       watchRunHandler,
			ServerStreams: true,
		},
	},
	Metadata: "internal/relay/relay.go",
}

func watchRunHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(runWatcher).WatchRun(req, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

var states = map[string]lifecycle.State{
	"idle":      lifecycle.Idle,
	"creating":  lifecycle.Creating,
	"polling":   lifecycle.Polling,
	"completed": lifecycle.Completed,
	"failed":    lifecycle.Failed,
}

// encode converts a snapshot to its wire form.
func encode(s lifecycle.Snapshot) (*structpb.Struct, error) {
	logs := make([]any, len(s.Logs))
	for i, l := range s.Logs {
		logs[i] = l
	}
	m := map[string]any{
		"run_id":      s.RunID,
		"name":        s.Name,
		"state":       s.State.String(),
		"status":      string(s.Status),
		"progress":    s.Progress,
		"message":     s.Message,
		"logs":        logs,
		"observed_at": s.ObservedAt.UTC().Format(time.RFC3339Nano),
	}
	if s.Err != nil {
		m["error"] = s.Err.Error()
	}
	return structpb.NewStruct(m)
}

// decode is the inverse of encode. Unknown states decode as Idle.
func decode(st *structpb.Struct) lifecycle.Snapshot {
	f := st.GetFields()
	str := func(k string) string { return f[k].GetStringValue() }

	s := lifecycle.Snapshot{
		RunID:    str("run_id"),
		Name:     str("name"),
		State:    states[str("state")],
		Status:   domain.RunState(str("status")),
		Progress: f["progress"].GetNumberValue(),
		Message:  str("message"),
	}
	for _, v := range f["logs"].GetListValue().GetValues() {
		s.Logs = append(s.Logs, v.GetStringValue())
	}
	if e := str("error"); e != "" {
		s.Err = errors.New(e)
	}
	if t, err := time.Parse(time.RFC3339Nano, str("observed_at")); err == nil {
		s.ObservedAt = t
	}
	return s
}
