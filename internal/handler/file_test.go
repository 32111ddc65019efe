package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okanat/filedock/internal/access"
	"github.com/okanat/filedock/internal/blob"
	"github.com/okanat/filedock/internal/checkout"
	"github.com/okanat/filedock/internal/logging"
	"github.com/okanat/filedock/internal/model"
	"github.com/okanat/filedock/internal/store"
)

func newTestHandler(t *testing.T) *FileHandler {
	t.Helper()
	checker := &access.StaticChecker{Projects: map[string]model.Project{
		"p1": {ProjectID: "p1", OwnerID: "owner", ContributorIDs: []string{"alice"}},
	}}
	svc := checkout.NewService(
		store.NewMemoryFiles(), store.NewMemoryVersions(), blob.NewMemoryStore(),
		checker, &access.StaticDirectory{}, logging.NopLogger{},
	)
	return NewFileHandler(svc, logging.NopLogger{})
}

func request(userID, body string, params map[string]string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		Body:           body,
		PathParameters: params,
		RequestContext: events.APIGatewayProxyRequestContext{
			Authorizer: map[string]interface{}{"userId": userID},
		},
	}
}

func TestHandlerFlow(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	content := base64.StdEncoding.EncodeToString([]byte("model v1"))

	resp, err := h.CreateFile(ctx, request("owner",
		`{"name":"gear.step","mime_type":"application/step","content_base64":"`+content+`"}`,
		map[string]string{"projectId": "p1"}))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created model.File
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &created))
	assert.Equal(t, int64(1), created.CurrentVersion)
	params := map[string]string{"projectId": "p1", "fileId": created.FileID}

	resp, err = h.CreateActivity(ctx, request("alice", `{"action":"pull"}`, params))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// A second pull collides with the live hold.
	resp, err = h.CreateActivity(ctx, request("owner", `{"action":"pull"}`, params))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	v2 := base64.StdEncoding.EncodeToString([]byte("model v2"))
	resp, err = h.CreateActivity(ctx, request("alice", `{"action":"push","content_base64":"`+v2+`"}`, params))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var pushed model.Activity
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &pushed))
	assert.Equal(t, int64(2), pushed.FileVersion)

	get := request("alice", "", params)
	get.QueryStringParameters = map[string]string{"version": "2"}
	resp, err = h.GetContent(ctx, get)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.IsBase64Encoded)
	assert.Equal(t, v2, resp.Body)
	assert.Equal(t, "application/step", resp.Headers["Content-Type"])
}

func TestCreateActivity_UnknownAction(t *testing.T) {
	h := newTestHandler(t)
	resp, err := h.CreateActivity(context.Background(), request("alice", `{"action":"merge"}`,
		map[string]string{"projectId": "p1", "fileId": "f1"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlers_MissingIdentity(t *testing.T) {
	h := newTestHandler(t)
	resp, err := h.ListFiles(context.Background(), events.APIGatewayProxyRequest{
		PathParameters: map[string]string{"projectId": "p1"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
