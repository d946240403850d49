package history

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/zboralski/loris/internal/trace"
)

// Session records one guest run: what module ran, how it ended, and
// every stub call it made.
type Session struct {
	ID       string
	Module   string
	Entry    string
	Started  time.Time
	Duration time.Duration
	ExitCode uint32
	Outcome  string // "ok", "exit", or "error"
	Stubs    int
	Calls    uint64
	Events   []*trace.Event
}

// NewSession starts a session record for a module about to run.
func NewSession(module, entry string) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Module:  module,
		Entry:   entry,
		Started: time.Now(),
		Outcome: "ok",
	}
}

// Finish stamps the session with its result.
func (s *Session) Finish(outcome string, exitCode uint32) {
	s.Duration = time.Since(s.Started)
	s.Outcome = outcome
	s.ExitCode = exitCode
}

// Document renders the session as a protobuf Struct. Sessions are
// stored as documents rather than a fixed message so old records stay
// readable when fields are added.
func (s *Session) Document() (*structpb.Struct, error) {
	events := make([]any, 0, len(s.Events))
	for _, ev := range s.Events {
		ann := make(map[string]any, len(ev.Annotations))
		for k, v := range ev.Annotations {
			ann[k] = v
		}
		tags := make([]any, 0, len(ev.Tags))
		for _, tag := range ev.Tags {
			tags = append(tags, string(tag))
		}
		events = append(events, map[string]any{
			"seq":         ev.Seq,
			"tags":        tags,
			"name":        ev.Name,
			"detail":      ev.Detail,
			"annotations": ann,
			"ts":          ev.Timestamp.Format(time.RFC3339Nano),
		})
	}
	return structpb.NewStruct(map[string]any{
		"id":          s.ID,
		"module":      s.Module,
		"entry":       s.Entry,
		"started":     s.Started.Format(time.RFC3339Nano),
		"duration_us": s.Duration.Microseconds(),
		"exit_code":   s.ExitCode,
		"outcome":     s.Outcome,
		"stubs":       s.Stubs,
		"calls":       s.Calls,
		"events":      events,
	})
}

func (s *Session) encode() ([]byte, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, fmt.Errorf("unable to build session document: %w", err)
	}
	data, err := proto.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal session: %w", err)
	}
	return data, nil
}

func decodeSession(data []byte) (*Session, error) {
	doc := &structpb.Struct{}
	if err := proto.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("unable to unmarshal session: %w", err)
	}
	m := doc.AsMap()
	s := &Session{
		ID:       str(m, "id"),
		Module:   str(m, "module"),
		Entry:    str(m, "entry"),
		Duration: time.Duration(num(m, "duration_us")) * time.Microsecond,
		ExitCode: uint32(num(m, "exit_code")),
		Outcome:  str(m, "outcome"),
		Stubs:    int(num(m, "stubs")),
		Calls:    uint64(num(m, "calls")),
	}
	s.Started, _ = time.Parse(time.RFC3339Nano, str(m, "started"))
	raw, _ := m["events"].([]any)
	for _, item := range raw {
		em, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ev := &trace.Event{
			Seq:         uint64(num(em, "seq")),
			Name:        str(em, "name"),
			Detail:      str(em, "detail"),
			Annotations: make(trace.Annotations),
		}
		if tags, ok := em["tags"].([]any); ok {
			for _, t := range tags {
				if ts, ok := t.(string); ok {
					ev.Tags = append(ev.Tags, trace.Tag(ts))
				}
			}
		}
		if ann, ok := em["annotations"].(map[string]any); ok {
			for k, v := range ann {
				if vs, ok := v.(string); ok {
					ev.Annotations[k] = vs
				}
			}
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, str(em, "ts"))
		s.Events = append(s.Events, ev)
	}
	return s, nil
}

func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func num(m map[string]any, key string) float64 {
	v, _ := m[key].(float64)
	return v
}
