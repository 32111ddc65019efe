package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/okanat/filedock/internal/apperr"
	"github.com/okanat/filedock/internal/checkout"
	"github.com/okanat/filedock/internal/logging"
)

// FileHandler translates API Gateway requests into checkout engine calls.
// It does no validation beyond shape decoding; request validation lives
// upstream.
type FileHandler struct {
	svc *checkout.Service
	log logging.Logger
}

func NewFileHandler(svc *checkout.Service, log logging.Logger) *FileHandler {
	return &FileHandler{svc: svc, log: log}
}

type createFileRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	MIMEType      string   `json:"mime_type"`
	ContentBase64 string   `json:"content_base64"`
}

func (h *FileHandler) CreateFile(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := CallerID(req)
	if err != nil {
		return unauthorized(), nil
	}
	var in createFileRequest
	if err := json.Unmarshal([]byte(req.Body), &in); err != nil {
		return errorResponse(apperr.Wrap(apperr.CodeUnknown, "decode request body", err)), nil
	}
	content, err := base64.StdEncoding.DecodeString(in.ContentBase64)
	if err != nil {
		return errorResponse(apperr.Wrap(apperr.CodeUnknown, "decode file content", err)), nil
	}
	f, err := h.svc.CreateFile(ctx, userID, checkout.CreateFileInput{
		ProjectID:   req.PathParameters["projectId"],
		Name:        in.Name,
		Description: in.Description,
		Tags:        in.Tags,
		MIMEType:    in.MIMEType,
		Content:     content,
	})
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusCreated, f), nil
}

func (h *FileHandler) GetFile(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := CallerID(req)
	if err != nil {
		return unauthorized(), nil
	}
	details, err := h.svc.GetFile(ctx, userID, req.PathParameters["projectId"], req.PathParameters["fileId"])
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, details), nil
}

func (h *FileHandler) ListFiles(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := CallerID(req)
	if err != nil {
		return unauthorized(), nil
	}
	files, err := h.svc.ListFiles(ctx, userID, req.PathParameters["projectId"])
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, files), nil
}

type updateFileRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func (h *FileHandler) UpdateFile(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := CallerID(req)
	if err != nil {
		return unauthorized(), nil
	}
	var in updateFileRequest
	if err := json.Unmarshal([]byte(req.Body), &in); err != nil {
		return errorResponse(apperr.Wrap(apperr.CodeUnknown, "decode request body", err)), nil
	}
	err = h.svc.UpdateFileInfo(ctx, userID, req.PathParameters["projectId"], req.PathParameters["fileId"],
		in.Name, in.Description, in.Tags)
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, map[string]bool{"ok": true}), nil
}

func (h *FileHandler) DeleteFile(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := CallerID(req)
	if err != nil {
		return unauthorized(), nil
	}
	err = h.svc.DeleteFile(ctx, userID, req.PathParameters["projectId"], req.PathParameters["fileId"])
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, map[string]bool{"ok": true}), nil
}

// GetContent streams a version's bytes back through the proxy response,
// base64-encoded as API Gateway requires for binary bodies.
func (h *FileHandler) GetContent(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := CallerID(req)
	if err != nil {
		return unauthorized(), nil
	}
	version := req.QueryStringParameters["version"]
	rc, f, err := h.svc.GetContent(ctx, userID, req.PathParameters["projectId"], req.PathParameters["fileId"], version)
	if err != nil {
		return errorResponse(err), nil
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return errorResponse(apperr.Wrap(apperr.CodeStorageRead, "read version blob", err)), nil
	}
	return events.APIGatewayProxyResponse{
		StatusCode:      http.StatusOK,
		Headers:         map[string]string{"Content-Type": f.MIMEType},
		Body:            base64.StdEncoding.EncodeToString(content),
		IsBase64Encoded: true,
	}, nil
}

type activityRequest struct {
	Action                string `json:"action"`
	Description           string `json:"description"`
	EstimatedCompletionAt string `json:"estimated_completion_at,omitempty"`
	ContentBase64         string `json:"content_base64,omitempty"`
}

// CreateActivity is the single pull/push/cancel endpoint, switching on the
// requested action like the original API did.
func (h *FileHandler) CreateActivity(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := CallerID(req)
	if err != nil {
		return unauthorized(), nil
	}
	var in activityRequest
	if err := json.Unmarshal([]byte(req.Body), &in); err != nil {
		return errorResponse(apperr.Wrap(apperr.CodeUnknown, "decode request body", err)), nil
	}
	projectID := req.PathParameters["projectId"]
	fileID := req.PathParameters["fileId"]

	switch in.Action {
	case "pull":
		var est time.Time
		if in.EstimatedCompletionAt != "" {
			est, err = time.Parse(time.RFC3339, in.EstimatedCompletionAt)
			if err != nil {
				return errorResponse(apperr.Wrap(apperr.CodeUnknown, "parse estimated_completion_at", err)), nil
			}
		}
		act, err := h.svc.Pull(ctx, userID, projectID, fileID, est, in.Description)
		if err != nil {
			return errorResponse(err), nil
		}
		return jsonResponse(http.StatusCreated, act), nil

	case "push":
		content, err := base64.StdEncoding.DecodeString(in.ContentBase64)
		if err != nil {
			return errorResponse(apperr.Wrap(apperr.CodeUnknown, "decode file content", err)), nil
		}
		act, err := h.svc.Push(ctx, userID, projectID, fileID, content, in.Description)
		if err != nil {
			return errorResponse(err), nil
		}
		return jsonResponse(http.StatusCreated, act), nil

	case "cancel":
		act, err := h.svc.Cancel(ctx, userID, projectID, fileID, in.Description)
		if err != nil {
			return errorResponse(err), nil
		}
		return jsonResponse(http.StatusCreated, act), nil

	default:
		return jsonResponse(http.StatusBadRequest, map[string]string{"error": "unknown action " + in.Action}), nil
	}
}

type retainRequest struct {
	Retain bool `json:"retain"`
}

func (h *FileHandler) SetRetain(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := CallerID(req)
	if err != nil {
		return unauthorized(), nil
	}
	version, err := strconv.ParseInt(req.PathParameters["version"], 10, 64)
	if err != nil {
		return errorResponse(apperr.Wrap(apperr.CodeNotFound, "bad version number", err)), nil
	}
	var in retainRequest
	if err := json.Unmarshal([]byte(req.Body), &in); err != nil {
		return errorResponse(apperr.Wrap(apperr.CodeUnknown, "decode request body", err)), nil
	}
	err = h.svc.SetRetain(ctx, userID, req.PathParameters["projectId"], req.PathParameters["fileId"], version, in.Retain)
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, map[string]bool{"ok": true}), nil
}
