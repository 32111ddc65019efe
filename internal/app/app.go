// Package app wires the engine's dependencies and routes API Gateway events.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/okanat/filedock/internal/access"
	"github.com/okanat/filedock/internal/blob"
	"github.com/okanat/filedock/internal/checkout"
	"github.com/okanat/filedock/internal/handler"
	"github.com/okanat/filedock/internal/logging"
	"github.com/okanat/filedock/internal/secret"
	"github.com/okanat/filedock/internal/store"
	"github.com/okanat/filedock/internal/sweeper"
)

// App holds the wired dependencies for the Lambda function.
type App struct {
	fileHandler  *handler.FileHandler
	sweep        *sweeper.Sweeper
	lifetimeDays int
	log          logging.Logger
}

// NewApp initializes the application dependencies.
func NewApp(ctx context.Context) *App {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		panic(fmt.Sprintf("unable to load SDK config, %v", err))
	}

	devMode := os.Getenv("DEV_MODE") == "true"

	var log logging.Logger
	if devMode {
		log = logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	} else {
		log = logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}

	var resolver secret.Resolver
	if devMode {
		resolver = secret.NewEnvResolver()
	} else {
		resolver = secret.NewSSMResolver(ssm.NewFromConfig(cfg))
	}

	filesTable := resolveOr(ctx, resolver, "/filedock/files-table", "Files")
	versionsTable := resolveOr(ctx, resolver, "/filedock/versions-table", "FileVersions")
	projectsTable := resolveOr(ctx, resolver, "/filedock/projects-table", "Projects")
	usersTable := resolveOr(ctx, resolver, "/filedock/users-table", "Users")
	bucket := resolveOr(ctx, resolver, "/filedock/projects-bucket", "filedock-projects")

	lifetimeDays := 30
	if v := resolveOr(ctx, resolver, "/filedock/file-lifetime-days", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			lifetimeDays = n
		}
	}

	dynamoClient := dynamodb.NewFromConfig(cfg)
	s3Client := s3.NewFromConfig(cfg)

	files := store.NewDynamoFiles(dynamoClient, filesTable)
	versions := store.NewDynamoVersions(dynamoClient, versionsTable)
	blobs := blob.NewS3Store(s3Client, bucket)
	checker := access.NewDynamoChecker(dynamoClient, projectsTable)
	dir := access.NewDynamoDirectory(dynamoClient, usersTable)

	svc := checkout.NewService(files, versions, blobs, checker, dir, log)

	return &App{
		fileHandler:  handler.NewFileHandler(svc, log),
		sweep:        sweeper.NewSweeper(versions, blobs, log),
		lifetimeDays: lifetimeDays,
		log:          log,
	}
}

func resolveOr(ctx context.Context, r secret.Resolver, name, fallback string) string {
	v, err := r.Get(ctx, name)
	if err != nil {
		return fallback
	}
	return v
}

// RunSweep executes one retention sweep with the configured lifetime.
func (a *App) RunSweep(ctx context.Context) error {
	return a.sweep.Run(ctx, a.lifetimeDays)
}

// HandleRequest routes API Gateway requests to the appropriate handler.
//
// Routes:
//
//	GET    /projects/{projectId}/files
//	POST   /projects/{projectId}/files
//	GET    /projects/{projectId}/files/{fileId}
//	PATCH  /projects/{projectId}/files/{fileId}
//	DELETE /projects/{projectId}/files/{fileId}
//	GET    /projects/{projectId}/files/{fileId}/content?version=N|latest
//	POST   /projects/{projectId}/files/{fileId}/activities
//	PUT    /projects/{projectId}/files/{fileId}/versions/{version}/retain
func (a *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := strings.TrimPrefix(req.Path, "/api")
	method := req.HTTPMethod

	if req.PathParameters == nil {
		req.PathParameters = make(map[string]string)
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "projects" || parts[2] != "files" {
		return notFound(method, path), nil
	}
	req.PathParameters["projectId"] = parts[1]

	switch {
	case len(parts) == 3:
		if method == "GET" {
			return a.fileHandler.ListFiles(ctx, req)
		}
		if method == "POST" {
			return a.fileHandler.CreateFile(ctx, req)
		}

	case len(parts) == 4:
		req.PathParameters["fileId"] = parts[3]
		switch method {
		case "GET":
			return a.fileHandler.GetFile(ctx, req)
		case "PATCH":
			return a.fileHandler.UpdateFile(ctx, req)
		case "DELETE":
			return a.fileHandler.DeleteFile(ctx, req)
		}

	case len(parts) == 5:
		req.PathParameters["fileId"] = parts[3]
		if parts[4] == "content" && method == "GET" {
			return a.fileHandler.GetContent(ctx, req)
		}
		if parts[4] == "activities" && method == "POST" {
			return a.fileHandler.CreateActivity(ctx, req)
		}

	case len(parts) == 7:
		req.PathParameters["fileId"] = parts[3]
		if parts[4] == "versions" && parts[6] == "retain" && method == "PUT" {
			req.PathParameters["version"] = parts[5]
			return a.fileHandler.SetRetain(ctx, req)
		}
	}

	return notFound(method, path), nil
}

func notFound(method, path string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("Not Found: %s %s", method, path),
	}
}
