package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/okanat/filedock/internal/apperr"
)

// CallerID extracts the pre-authenticated user ID from the request.
// Authentication itself happens upstream (API Gateway authorizer); the engine
// only needs the identity the authorizer established. Local runs may supply
// an X-User-Id header instead.
func CallerID(req events.APIGatewayProxyRequest) (string, error) {
	if req.RequestContext.Authorizer != nil {
		if v, ok := req.RequestContext.Authorizer["userId"].(string); ok && v != "" {
			return v, nil
		}
	}
	for k, v := range req.Headers {
		if strings.EqualFold(k, "X-User-Id") && v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("no caller identity on request")
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

type errorBody struct {
	Error struct {
		Code    apperr.Code `json:"code"`
		Message string      `json:"message"`
	} `json:"error"`
}

// errorResponse maps the engine's error taxonomy onto HTTP statuses.
func errorResponse(err error) events.APIGatewayProxyResponse {
	code := apperr.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeNotAuthorized:
		status = http.StatusForbidden
	case apperr.CodeAlreadyExists, apperr.CodeNotPulled, apperr.CodeAlreadyPulled, apperr.CodeStaleVersion:
		status = http.StatusConflict
	}

	var body errorBody
	body.Error.Code = code
	body.Error.Message = err.Error()
	return jsonResponse(status, body)
}

func unauthorized() events.APIGatewayProxyResponse {
	var body errorBody
	body.Error.Code = apperr.CodeNotAuthorized
	body.Error.Message = "no caller identity on request"
	return jsonResponse(http.StatusUnauthorized, body)
}
