// Package service exposes the session archive over connect RPC so
// other tools can pull traces without touching the bbolt file.
//
// The procedures speak protobuf Struct documents instead of generated
// messages: sessions are already stored as documents, and clients in
// any language can read them without this repo's schema.
package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/zboralski/loris/internal/history"
)

// Procedure paths for the trace service.
const (
	ListSessionsProcedure = "/loris.v1.TraceService/ListSessions"
	GetSessionProcedure   = "/loris.v1.TraceService/GetSession"
	StatsProcedure        = "/loris.v1.TraceService/Stats"
)

// Server serves the trace service from a session store.
type Server struct {
	store *history.Store
	srv   *http.Server
}

// New creates a server over an open store.
func New(store *history.Store) *Server {
	return &Server{store: store}
}

// Handler returns the routed trace service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(ListSessionsProcedure, connect.NewUnaryHandler(ListSessionsProcedure, s.listSessions))
	mux.Handle(GetSessionProcedure, connect.NewUnaryHandler(GetSessionProcedure, s.getSession))
	mux.Handle(StatsProcedure, connect.NewUnaryHandler(StatsProcedure, s.stats))
	return mux
}

// ListenAndServe blocks serving on addr until Shutdown. gRPC clients
// need HTTP/2; h2c carries it without TLS on a loopback listener.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve blocks serving on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	s.srv = &http.Server{
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) listSessions(ctx context.Context, _ *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	sessions, err := s.store.List()
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	items := make([]any, 0, len(sessions))
	for _, sess := range sessions {
		items = append(items, summarize(sess))
	}
	doc, err := structpb.NewStruct(map[string]any{"sessions": items})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(doc), nil
}

func (s *Server) getSession(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	id, _ := req.Msg.AsMap()["id"].(string)
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("id is required"))
	}
	sess, err := s.store.Get(id)
	if errors.Is(err, history.ErrNotFound) {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	doc, err := sess.Document()
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(doc), nil
}

func (s *Server) stats(ctx context.Context, _ *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	sessions, err := s.store.List()
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	var calls uint64
	modules := make(map[string]struct{})
	for _, sess := range sessions {
		calls += sess.Calls
		modules[sess.Module] = struct{}{}
	}
	doc, err := structpb.NewStruct(map[string]any{
		"sessions": len(sessions),
		"calls":    calls,
		"modules":  len(modules),
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(doc), nil
}

func summarize(sess *history.Session) map[string]any {
	return map[string]any{
		"id":          sess.ID,
		"module":      sess.Module,
		"entry":       sess.Entry,
		"started":     sess.Started.Format(time.RFC3339Nano),
		"duration_us": sess.Duration.Microseconds(),
		"exit_code":   sess.ExitCode,
		"outcome":     sess.Outcome,
		"calls":       sess.Calls,
		"stubs":       sess.Stubs,
		"events":      len(sess.Events),
	}
}
