// Package mcp exposes the tutor to Model Context Protocol clients over
// stdio: asking questions, browsing the catalog and reading usage reports.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jajabor-ai/tutor/pkg/logging"
	"github.com/jajabor-ai/tutor/pkg/models"
	"github.com/jajabor-ai/tutor/pkg/quota"
	"github.com/jajabor-ai/tutor/pkg/tracker"
	"github.com/jajabor-ai/tutor/pkg/tutor"
)

// Asker answers one question into a sink.
type Asker interface {
	Ask(ctx context.Context, req models.AskRequest, sink tutor.Sink) (tutor.Outcome, error)
}

// Catalog lists subjects, chapters and sample questions.
type Catalog interface {
	Subjects() []models.Subject
	Chapters(ctx context.Context, subjectID string) []models.Chapter
	Questions(ctx context.Context, chapterID string) []models.Question
}

// CacheStatter reports answer cache statistics.
type CacheStatter interface {
	Stats(ctx context.Context) (models.CacheStats, error)
}

// TranscriptSearcher queries the transcript log.
type TranscriptSearcher interface {
	Query(ctx context.Context, q models.TranscriptQuery) ([]models.TranscriptEntry, error)
}

// Deps are the backends tools read from. Any of them may be nil.
type Deps struct {
	Tutor       Asker
	Catalog     Catalog
	Tracker     tracker.Tracker
	Cache       CacheStatter
	Quota       *quota.Enforcer
	Transcripts TranscriptSearcher
	Version     string
	Logger      *slog.Logger
	// AskTimeout bounds one tutor_ask call. Zero means two minutes.
	AskTimeout time.Duration
}

// Server is a line-delimited JSON-RPC 2.0 server.
type Server struct {
	d      Deps
	logger *slog.Logger
}

// New creates a Server.
func New(d Deps) *Server {
	if d.AskTimeout <= 0 {
		d.AskTimeout = 2 * time.Minute
	}
	return &Server{d: d, logger: logging.OrDiscard(d.Logger).With("component", "mcp")}
}

// Run reads requests from r line by line and writes responses to w. It
// returns when r is exhausted or ctx is done.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, failure(nil, CodeParseError, "parse error"))
			continue
		}
		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return result(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: serverName, Version: s.d.Version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return result(req.ID, map[string]any{})
	case "tools/list":
		return result(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.call(ctx, req)
	default:
		if len(req.ID) == 0 {
			return nil
		}
		return failure(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) call(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return failure(req.ID, CodeInvalidParams, "invalid params")
	}
	handler, ok := toolHandlers[params.Name]
	if !ok {
		return result(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	s.logger.Debug("tool call", "tool", params.Name)
	return result(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) write(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", "err", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write response", "err", err)
	}
}
