package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/dmorgan81/imageedit/internal/config"
	"github.com/dmorgan81/imageedit/internal/edit"
	"github.com/dmorgan81/imageedit/internal/log"
	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/samber/lo"
)

const (
	allowHeaders = "Content-Type,Authorization,X-Amz-Date,X-Api-Key,X-Amz-Security-Token"
	allowMethods = "OPTIONS,POST"
)

var errMissingBody = errors.New("missing body in request")

// Request is an API Gateway proxy event. Direct invocations carry no HTTP method and may send
// the body as a JSON object.
type Request struct {
	events.APIGatewayProxyRequest
	RawBody json.RawMessage `json:"body"`
}

type Editor interface {
	Handle(context.Context, edit.Request) (*edit.Response, error)
	Wait()
}

type Handler struct {
	editor      Editor
	origin      string
	requireAuth bool
}

func New(editor Editor, origin string, requireAuth bool) *Handler {
	return &Handler{editor: editor, origin: origin, requireAuth: requireAuth}
}

func NewHandler(i *do.Injector) (*Handler, error) {
	cfg := do.MustInvoke[config.Config](i)
	return New(do.MustInvoke[*edit.Service](i), cfg.CORSOrigin, cfg.RequireAuth), nil
}

func (h *Handler) Handle(ctx context.Context, req Request) (events.APIGatewayProxyResponse, error) {
	ctx, logger := log.With(ctx, "handler",
		"method", req.HTTPMethod,
		"path", req.Path,
		"aws_request_id", req.RequestContext.RequestID,
	)
	logger.Info("handling lambda invocation")

	switch req.HTTPMethod {
	case http.MethodOptions:
		return h.respond(http.StatusNoContent, nil), nil
	case http.MethodPost, "":
	default:
		logger.Warn("rejecting unsupported method")
		resp := h.respond(http.StatusMethodNotAllowed, edit.ErrorResponse{
			ErrorID: uuid.NewString(),
			Message: fmt.Sprintf("method %s not allowed", req.HTTPMethod),
		})
		resp.Headers["Allow"] = allowMethods
		return resp, nil
	}

	if h.requireAuth && !authorized(req.RequestContext.Authorizer) {
		logger.Warn("rejecting unauthenticated request")
		return h.respond(http.StatusUnauthorized, edit.ErrorResponse{
			ErrorID: uuid.NewString(),
			Message: "authentication required",
		}), nil
	}

	body, err := req.body()
	if err != nil {
		errorID := uuid.NewString()
		logger.Warn("unreadable request body", "error_id", errorID, "error", err)
		return h.respond(http.StatusBadRequest, edit.ErrorResponse{
			ErrorID:   errorID,
			ErrorType: edit.KindValidation,
			Message:   lo.Ternary(errors.Is(err, errMissingBody), "Missing body in request", "Invalid JSON in request body"),
		}), nil
	}

	var editReq edit.Request
	if err := json.Unmarshal(body, &editReq); err != nil {
		errorID := uuid.NewString()
		logger.Warn("invalid request json", "error_id", errorID, "error", err)
		return h.respond(http.StatusBadRequest, edit.ErrorResponse{
			ErrorID:   errorID,
			ErrorType: edit.KindValidation,
			Message:   "Invalid JSON in request body",
		}), nil
	}

	resp, err := h.editor.Handle(ctx, editReq)
	// The runtime freezes the instance once we return, so pending audit writes finish first.
	h.editor.Wait()

	if err != nil {
		status, body := edit.ErrorResponseFor(err, uuid.NewString())
		return h.respond(status, body), nil
	}
	return h.respond(http.StatusOK, resp), nil
}

func (r Request) body() ([]byte, error) {
	raw := bytes.TrimSpace(r.RawBody)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errMissingBody
	}
	if raw[0] != '"' {
		return raw, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if r.IsBase64Encoded {
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decode base64 body: %w", err)
		}
		s = string(data)
	}
	if len(bytes.TrimSpace([]byte(s))) == 0 {
		return nil, errMissingBody
	}
	return []byte(s), nil
}

// authorized reports whether an upstream authorizer attached an identity to the request.
func authorized(authorizer map[string]any) bool {
	if claims, ok := authorizer["claims"].(map[string]any); ok && len(claims) > 0 {
		return true
	}
	principal, _ := authorizer["principalId"].(string)
	return principal != ""
}

func (h *Handler) headers() map[string]string {
	headers := map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  h.origin,
		"Access-Control-Allow-Headers": allowHeaders,
		"Access-Control-Allow-Methods": allowMethods,
	}
	if h.origin != "*" {
		headers["Vary"] = "Origin"
	}
	return headers
}

func (h *Handler) respond(status int, body any) events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{StatusCode: status, Headers: h.headers()}
	if body == nil {
		return resp
	}
	data, err := json.Marshal(body)
	if err != nil {
		resp.StatusCode = http.StatusInternalServerError
		data = []byte(`{"error_id":"","message":"internal error"}`)
	}
	resp.Body = string(data)
	return resp
}
