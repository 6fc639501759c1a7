package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/pagewise/internal/dom"
	"github.com/raphaelgruber/pagewise/internal/manager"
	"github.com/raphaelgruber/pagewise/internal/models"
)

// Frame types accepted on /ws.
const (
	FrameInitializePage = "initializePage"
	FrameProcessMessage = "processMessage"
	FrameBuildContext   = "buildContext"
	FrameChat           = "chat"
	FrameStartResearch  = "startResearch"
	FrameAddFinding     = "addFinding"
	FrameEndResearch    = "endResearch"
	FrameMetrics        = "metrics"
	FrameSummary        = "summary"
	FrameClear          = "clear"
)

// Reply types.
const (
	ReplyResult = "result"
	ReplyError  = "error"
)

// ErrNoChatModel is returned for chat frames when no model is configured.
var ErrNoChatModel = errors.New("chat model not configured")

// Frame is a request from the extension.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply answers one frame. ID echoes the request id.
type Reply struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

type pagePayload struct {
	HTML     string `json:"html"`
	Markdown string `json:"markdown,omitempty"`
	URL      string `json:"url"`
}

type messagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatPayload struct {
	Message   string `json:"message"`
	Model     string `json:"targetModel,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

// ChatResult answers a chat frame.
type ChatResult struct {
	ConversationID string               `json:"conversationId"`
	Reply          string               `json:"reply"`
	Model          string               `json:"model"`
	Tokens         int                  `json:"tokens"`
	ResearchMode   manager.ResearchMode `json:"researchMode"`
}

type researchPayload struct {
	Name    string `json:"name,omitempty"`
	Goal    string `json:"goal,omitempty"`
	Content string `json:"content,omitempty"`
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(s.cfg.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Frames larger than this are dropped with a close error.
	conn.SetReadLimit(maxImportBytes)
	s.logger.Info("extension connected", "remote", r.RemoteAddr)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "error", err)
			}
			s.logger.Info("extension disconnected", "remote", r.RemoteAddr)
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.send(conn, Reply{Type: ReplyError, Error: "invalid frame: " + err.Error()})
			continue
		}
		if frame.ID == "" {
			frame.ID = uuid.NewString()
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.FrameTimeout)
		payload, err := s.dispatch(ctx, frame)
		cancel()
		if err != nil {
			s.logger.Debug("frame failed", "id", frame.ID, "type", frame.Type, "error", err)
			s.send(conn, Reply{ID: frame.ID, Type: ReplyError, Error: err.Error()})
			continue
		}
		s.send(conn, Reply{ID: frame.ID, Type: ReplyResult, Payload: payload})
	}
}

func (s *Server) send(conn *websocket.Conn, reply Reply) {
	if err := conn.WriteJSON(reply); err != nil {
		s.logger.Warn("websocket write failed", "id", reply.ID, "error", err)
	}
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, f Frame) (any, error) {
	switch f.Type {
	case FrameInitializePage:
		var p pagePayload
		if err := decode(f.Payload, &p); err != nil {
			return nil, err
		}
		return s.initializePage(ctx, p)

	case FrameProcessMessage:
		var p messagePayload
		if err := decode(f.Payload, &p); err != nil {
			return nil, err
		}
		role, err := parseRole(p.Role)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Content) == "" {
			return nil, errors.New("content is required")
		}
		return s.mgr.ProcessMessage(ctx, models.Message{Role: role, Content: p.Content})

	case FrameBuildContext:
		var req manager.BuildRequest
		if err := decode(f.Payload, &req); err != nil {
			return nil, err
		}
		return s.mgr.BuildContext(ctx, req)

	case FrameChat:
		var p chatPayload
		if err := decode(f.Payload, &p); err != nil {
			return nil, err
		}
		return s.chatTurn(ctx, p)

	case FrameStartResearch:
		var p researchPayload
		if err := decode(f.Payload, &p); err != nil {
			return nil, err
		}
		return s.mgr.StartResearchSession(ctx, p.Name, p.Goal)

	case FrameAddFinding:
		var p researchPayload
		if err := decode(f.Payload, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Content) == "" {
			return nil, errors.New("content is required")
		}
		return s.mgr.AddResearchFinding(ctx, p.Content)

	case FrameEndResearch:
		return s.mgr.EndResearchSession(ctx)

	case FrameMetrics:
		return s.mgr.GetMetrics(), nil

	case FrameSummary:
		return s.mgr.Summary(), nil

	case FrameClear:
		if err := s.mgr.ClearAllContext(ctx); err != nil {
			return nil, err
		}
		return s.mgr.Summary(), nil

	default:
		return nil, fmt.Errorf("unknown frame type %q", f.Type)
	}
}

func (s *Server) initializePage(ctx context.Context, p pagePayload) (manager.PageResult, error) {
	var (
		doc *dom.HTMLDocument
		err error
	)
	switch {
	case p.HTML != "":
		doc, err = dom.ParseString(p.HTML, p.URL)
	case p.Markdown != "":
		doc, err = dom.FromMarkdown([]byte(p.Markdown), p.URL)
	default:
		return manager.PageResult{}, errors.New("html or markdown is required")
	}
	if err != nil {
		return manager.PageResult{}, fmt.Errorf("parse page: %w", err)
	}
	return s.mgr.InitializePage(ctx, doc)
}

// chatTurn records the user message, asks the model with the resulting
// context and records the reply.
func (s *Server) chatTurn(ctx context.Context, p chatPayload) (ChatResult, error) {
	if s.chat == nil {
		return ChatResult{}, ErrNoChatModel
	}
	if strings.TrimSpace(p.Message) == "" {
		return ChatResult{}, errors.New("message is required")
	}

	res, err := s.mgr.ProcessMessage(ctx, models.Message{Role: models.RoleUser, Content: p.Message})
	if err != nil {
		return ChatResult{}, err
	}
	built := res.Context
	if p.Model != "" || p.MaxTokens > 0 {
		built, err = s.mgr.BuildContext(ctx, manager.BuildRequest{
			Query:     p.Message,
			Model:     p.Model,
			MaxTokens: p.MaxTokens,
		})
		if err != nil {
			return ChatResult{}, err
		}
	}

	answer, err := s.chat.Complete(ctx, built.Prompt, nil, p.Message)
	if err != nil {
		return ChatResult{}, fmt.Errorf("chat: %w", err)
	}

	after, err := s.mgr.ProcessMessage(ctx, models.Message{Role: models.RoleAssistant, Content: answer})
	if err != nil {
		return ChatResult{}, err
	}
	return ChatResult{
		ConversationID: after.ConversationID,
		Reply:          answer,
		Model:          built.Model,
		Tokens:         built.Tokens,
		ResearchMode:   res.ResearchMode,
	}, nil
}

func parseRole(s string) (models.Role, error) {
	switch models.Role(s) {
	case "", models.RoleUser:
		return models.RoleUser, nil
	case models.RoleAssistant, models.RoleSystem:
		return models.Role(s), nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

// originAllowed matches origin against patterns that may contain one "*".
// Requests without an Origin header come from non-browser clients and are
// allowed.
func originAllowed(patterns []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, p := range patterns {
		if p == "*" || p == origin {
			return true
		}
		if strings.Contains(p, "*") {
			prefix, suffix, _ := strings.Cut(p, "*")
			if len(origin) >= len(prefix)+len(suffix) &&
				strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
				return true
			}
		}
	}
	return false
}
