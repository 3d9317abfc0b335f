package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"hta-chat/internal/domain"
	"hta-chat/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// ChatAPI is the chat surface exposed over API Gateway.
type ChatAPI interface {
	Converse(ctx context.Context, sessionID, text string) (usecase.Exchange, error)
	List(ctx context.Context) []domain.SessionSummary
	Get(ctx context.Context, id string) (domain.Session, error)
	Delete(ctx context.Context, id string) error
}

type Handler struct {
	chat   ChatAPI
	logger *slog.Logger
}

type messageRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

type messageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	SessionID string       `json:"sessionId"`
	Reply     messageDTO   `json:"reply"`
	Messages  []messageDTO `json:"messages"`
}

type summaryDTO struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview"`
	Timestamp    time.Time `json:"timestamp"`
	MessageCount int       `json:"messageCount"`
}

type listResponse struct {
	Sessions []summaryDTO `json:"sessions"`
}

type sessionResponse struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Preview   string       `json:"preview"`
	Timestamp time.Time    `json:"timestamp"`
	Messages  []messageDTO `json:"messages"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func NewHandler(chat ChatAPI) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat api must not be nil")
	}
	return &Handler{chat: chat, logger: slog.Default()}, nil
}

// Handle routes an API Gateway proxy event to the matching chat operation.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", correlationID, "method", event.HTTPMethod, "path", event.Path)

	path := strings.TrimRight(event.Path, "/")
	id := sessionIDFromPath(event, path)

	switch {
	case path == "/messages" && event.HTTPMethod == http.MethodPost:
		return h.postMessage(ctx, logger, correlationID, event.Body), nil
	case path == "/sessions" && event.HTTPMethod == http.MethodGet:
		return jsonResponse(http.StatusOK, correlationID, listResponse{Sessions: toSummaryDTOs(h.chat.List(ctx))}), nil
	case id != "" && event.HTTPMethod == http.MethodGet:
		sess, err := h.chat.Get(ctx, id)
		if err != nil {
			return errorFrom(logger, correlationID, err), nil
		}
		return jsonResponse(http.StatusOK, correlationID, toSessionResponse(sess)), nil
	case id != "" && event.HTTPMethod == http.MethodDelete:
		if err := h.chat.Delete(ctx, id); err != nil {
			return errorFrom(logger, correlationID, err), nil
		}
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusNoContent,
			Headers:    map[string]string{correlationHeader: correlationID},
		}, nil
	default:
		return jsonResponse(http.StatusNotFound, correlationID, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "route_not_found"}), nil
	}
}

func (h *Handler) postMessage(ctx context.Context, logger *slog.Logger, correlationID, body string) events.APIGatewayProxyResponse {
	var req messageRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"})
	}

	ex, err := h.chat.Converse(ctx, strings.TrimSpace(req.SessionID), req.Text)
	if err != nil {
		return errorFrom(logger, correlationID, err)
	}
	logger.Info("turn completed", "session_id", ex.Session.ID, "messages", len(ex.Session.Messages))

	return jsonResponse(http.StatusOK, correlationID, messageResponse{
		SessionID: ex.Session.ID,
		Reply:     toMessageDTO(ex.Reply),
		Messages:  toMessageDTOs(ex.Session.Messages),
	})
}

func sessionIDFromPath(event events.APIGatewayProxyRequest, path string) string {
	if id := strings.TrimSpace(event.PathParameters["id"]); id != "" {
		return id
	}
	rest, ok := strings.CutPrefix(path, "/sessions/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}

func errorFrom(logger *slog.Logger, correlationID string, err error) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		logger.Error("unexpected error", "err", err)
		return jsonResponse(http.StatusInternalServerError, correlationID, errorResponse{Error: string(usecase.ErrorInternal)})
	}

	status := http.StatusInternalServerError
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		status = http.StatusBadRequest
	case usecase.ErrorNotFound:
		status = http.StatusNotFound
	case usecase.ErrorSessionBusy:
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", err)
	} else {
		logger.Warn("request rejected", "code", ucErr.Code, "reason", ucErr.Reason)
	}
	return jsonResponse(status, correlationID, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason})
}

func jsonResponse(status int, correlationID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}

// headerValue looks a header up case-insensitively; API Gateway does not
// normalize header names.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func toMessageDTO(m domain.Message) messageDTO {
	return messageDTO{Role: string(m.Role), Content: m.Content}
}

func toMessageDTOs(msgs []domain.Message) []messageDTO {
	out := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageDTO(m))
	}
	return out
}

func toSummaryDTOs(summaries []domain.SessionSummary) []summaryDTO {
	out := make([]summaryDTO, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, summaryDTO{
			ID:           s.ID,
			Title:        s.Title,
			Preview:      s.Preview,
			Timestamp:    s.Timestamp,
			MessageCount: s.MessageCount,
		})
	}
	return out
}

func toSessionResponse(s domain.Session) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		Title:     s.Title,
		Preview:   s.Preview,
		Timestamp: s.Timestamp,
		Messages:  toMessageDTOs(s.Messages),
	}
}
