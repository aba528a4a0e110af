package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/labflow/pkg/cmd"
	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence/memory"
	"github.com/dukex/labflow/pkg/services"
	"github.com/dukex/labflow/pkg/testutil"
	"github.com/dukex/labflow/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *cmd.Stack) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewPersistence()

	catalogService, _, err := cmd.NewCatalog(context.Background(), store, logger, cmd.CatalogOptions{})
	require.NoError(t, err)

	stack := cmd.NewStack(store, catalogService, nil, logger, services.BuildOptions{})

	return NewAPI(logger, stack).App(), stack
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return body
}

func TestAPI_RootEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "labflow API", string(readBody(t, resp)))
}

func TestAPI_Liveness(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/livez", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(readBody(t, resp)))
}

func TestAPI_Health(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	readBody(t, resp)
}

func TestAPI_CreateWorkflowAgainstCatalog(t *testing.T) {
	app, stack := setupTestApp(t)
	ctx := context.Background()

	require.NoError(t, stack.Catalog.SaveService(ctx, testutil.CreateTestService("extraction")))

	payload, err := json.Marshal(web.CreateWorkflowRequest{
		Label: "DNA extraction",
		Nodes: []models.SubmissionNode{{ID: "n1", Label: "Extract", ServiceID: "extraction"}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(web.HeaderEmail, "alice@example.org")
	req.Header.Set(web.HeaderSubject, "sub-alice")
	req.Header.Set(web.HeaderRoles, "client")

	resp, err := app.Test(req)
	require.NoError(t, err)

	body := readBody(t, resp)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var workflow models.WorkflowGraph
	require.NoError(t, json.Unmarshal(body, &workflow))
	assert.NotEmpty(t, workflow.ID)
	assert.Len(t, workflow.Nodes, 1)
}

func TestAPI_CreateWorkflowUnknownService(t *testing.T) {
	app, _ := setupTestApp(t)

	payload := `{"nodes":[{"id":"n1","serviceId":"missing"}]}`

	req := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(web.HeaderEmail, "alice@example.org")
	req.Header.Set(web.HeaderRoles, "client")

	resp, err := app.Test(req)
	require.NoError(t, err)

	readBody(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
