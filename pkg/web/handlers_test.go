package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/labflow/pkg/auth"
	"github.com/dukex/labflow/pkg/catalog"
	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence/memory"
	"github.com/dukex/labflow/pkg/services"
	"github.com/dukex/labflow/pkg/testutil"
	"github.com/dukex/labflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewPersistence()

	for _, service := range []*models.Service{
		testutil.CreateTestService("extraction"),
		testutil.CreateTestService("sequencing", testutil.WithPrice(250)),
	} {
		require.NoError(t, store.Services().Insert(context.Background(), service))
	}

	catalogService := catalog.New(store, logger)
	authorizer := auth.NewRoleAuthorizer()
	builder := services.NewGraphBuilder(store, catalogService, nil, logger, services.BuildOptions{Mode: services.BuildModeTransactional})
	workflows := services.NewWorkflow(store, builder, authorizer, nil, logger)

	handlers := web.NewAPIHandlers(web.Services{
		Workflows:  workflows,
		Jobs:       services.NewJob(store, builder, workflows, authorizer, nil, logger),
		SOWs:       services.NewSOW(store, authorizer, nil, logger),
		Bundles:    services.NewBundle(store, builder, logger),
		Catalog:    catalogService,
		Authorizer: authorizer,
	}, validator.New(validator.WithRequiredStructEnabled()), logger)

	app := fiber.New()
	handlers.RegisterRoutes(app)

	return app
}

func asClient(req *http.Request, email string) {
	req.Header.Set(web.HeaderEmail, email)
	req.Header.Set(web.HeaderSubject, "sub-"+email)
	req.Header.Set(web.HeaderUsername, email)
	req.Header.Set(web.HeaderRoles, "client")
}

func asStaff(req *http.Request) {
	req.Header.Set(web.HeaderEmail, "tech@example.org")
	req.Header.Set(web.HeaderRoles, "staff")
}

func do(t *testing.T, app *fiber.App, method, path string, body any, identify func(*http.Request)) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	if identify != nil {
		identify(req)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func alice(req *http.Request) { asClient(req, "alice@example.org") }
func bob(req *http.Request)   { asClient(req, "bob@example.org") }

func workflowRequest() web.CreateWorkflowRequest {
	return web.CreateWorkflowRequest{
		Label: "DNA run",
		Nodes: []models.SubmissionNode{
			testutil.CreateTestNode("n1", "extraction"),
			testutil.CreateTestNode("n2", "sequencing"),
		},
		Edges: []models.SubmissionEdge{testutil.CreateTestEdge("n1", "n2")},
	}
}

func createJob(t *testing.T, app *fiber.App) models.Job {
	t.Helper()

	status, body := do(t, app, http.MethodPost, "/jobs", web.CreateJobRequest{
		Name:      "Panel",
		Institute: "Genome Institute",
		Workflows: []web.CreateWorkflowRequest{workflowRequest()},
	}, alice)
	require.Equal(t, http.StatusCreated, status, string(body))

	var job models.Job
	require.NoError(t, json.Unmarshal(body, &job))

	return job
}

func problemType(t *testing.T, body []byte) string {
	t.Helper()

	var problem map[string]any
	require.NoError(t, json.Unmarshal(body, &problem))

	kind, _ := problem["type"].(string)

	return kind
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	app := setupTestApp(t)

	status, body := do(t, app, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "healthy")
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		identify       func(*http.Request)
		expectedStatus int
		expectedType   string
	}{
		{"successful creation", workflowRequest(), alice, http.StatusCreated, ""},
		{"anonymous", workflowRequest(), nil, http.StatusForbidden, "forbidden"},
		{"invalid JSON", "invalid-json", alice, http.StatusBadRequest, "validation_error"},
		{"no nodes", web.CreateWorkflowRequest{Label: "empty"}, alice, http.StatusBadRequest, "validation_error"},
		{
			"dangling edge",
			web.CreateWorkflowRequest{
				Nodes: []models.SubmissionNode{testutil.CreateTestNode("n1", "extraction")},
				Edges: []models.SubmissionEdge{testutil.CreateTestEdge("n1", "ghost")},
			},
			alice, http.StatusBadRequest, "construction_error",
		},
		{
			"unknown service",
			web.CreateWorkflowRequest{Nodes: []models.SubmissionNode{testutil.CreateTestNode("n1", "retired")}},
			alice, http.StatusBadRequest, "construction_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setupTestApp(t)

			status, body := do(t, app, http.MethodPost, "/workflows", tt.body, tt.identify)
			assert.Equal(t, tt.expectedStatus, status, string(body))

			if tt.expectedType != "" {
				assert.Equal(t, tt.expectedType, problemType(t, body))

				return
			}

			var created models.WorkflowGraph
			require.NoError(t, json.Unmarshal(body, &created))
			assert.Len(t, created.Nodes, 2)
			assert.Equal(t, created.Nodes[0].ID, created.Edges[0].Source)

			status, body = do(t, app, http.MethodGet, "/workflows/"+string(created.ID), nil, alice)
			assert.Equal(t, http.StatusOK, status, string(body))
		})
	}
}

func TestAPIHandlers_GetWorkflow_Visibility(t *testing.T) {
	app := setupTestApp(t)

	status, body := do(t, app, http.MethodPost, "/workflows", workflowRequest(), alice)
	require.Equal(t, http.StatusCreated, status, string(body))

	var created models.WorkflowGraph
	require.NoError(t, json.Unmarshal(body, &created))

	path := "/workflows/" + string(created.ID)

	status, body = do(t, app, http.MethodGet, path, nil, bob)
	assert.Equal(t, http.StatusForbidden, status, string(body))
	assert.Equal(t, "forbidden", problemType(t, body))

	status, _ = do(t, app, http.MethodGet, path, nil, asStaff)
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, app, http.MethodGet, "/workflows/missing", nil, bob)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_Jobs(t *testing.T) {
	app := setupTestApp(t)
	job := createJob(t, app)

	assert.Equal(t, models.JobStateSubmitted, job.State)
	assert.Equal(t, "alice@example.org", job.SubmittedBy.Email)

	status, _ := do(t, app, http.MethodGet, "/jobs/"+string(job.ID), nil, alice)
	assert.Equal(t, http.StatusOK, status)

	status, body := do(t, app, http.MethodGet, "/jobs/"+string(job.ID), nil, bob)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, string(body), "not permitted")

	status, _ = do(t, app, http.MethodGet, "/jobs/missing", nil, asStaff)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = do(t, app, http.MethodGet, "/jobs", nil, bob)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"total_count":0`)

	status, _ = do(t, app, http.MethodPatch, "/jobs/"+string(job.ID)+"/state",
		web.ChangeJobStateRequest{State: models.JobStateAccepted}, alice)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = do(t, app, http.MethodPatch, "/jobs/"+string(job.ID)+"/state",
		web.ChangeJobStateRequest{State: models.JobStateAccepted}, asStaff)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"state":"ACCEPTED"`)

	status, _ = do(t, app, http.MethodPatch, "/jobs/"+string(job.ID)+"/state",
		web.ChangeJobStateRequest{State: "ARCHIVED"}, asStaff)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_NodeState(t *testing.T) {
	app := setupTestApp(t)

	status, body := do(t, app, http.MethodPost, "/workflows", workflowRequest(), alice)
	require.Equal(t, http.StatusCreated, status)

	var created models.WorkflowGraph
	require.NoError(t, json.Unmarshal(body, &created))

	path := "/nodes/" + string(created.Nodes[0].ID) + "/state"

	status, _ = do(t, app, http.MethodPatch, path, web.ChangeNodeStateRequest{State: models.NodeStateComplete}, alice)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = do(t, app, http.MethodPatch, path, web.ChangeNodeStateRequest{State: models.NodeStateComplete}, asStaff)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"state":"COMPLETE"`)

	status, _ = do(t, app, http.MethodPatch, path, web.ChangeNodeStateRequest{State: "PAUSED"}, asStaff)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_SOWSignatureFlow(t *testing.T) {
	app := setupTestApp(t)
	job := createJob(t, app)
	sowPath := "/jobs/" + string(job.ID) + "/sow"

	status, _ := do(t, app, http.MethodGet, sowPath, nil, alice)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, app, http.MethodPut, sowPath, web.UpsertSOWRequest{SOWNumber: 1}, alice)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := do(t, app, http.MethodPut, sowPath, web.UpsertSOWRequest{SOWNumber: 1}, asStaff)
	require.Equal(t, http.StatusOK, status, string(body))

	var sow models.SOW
	require.NoError(t, json.Unmarshal(body, &sow))
	assert.InDelta(t, 350, sow.Pricing.Total, 0.0001)

	signaturePath := "/sows/" + string(sow.ID) + "/signatures"
	signedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	status, _ = do(t, app, http.MethodPost, signaturePath, web.SubmitSignatureRequest{
		Role: models.SignatureRoleClient, Name: "Bob", SignedAt: signedAt,
	}, bob)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = do(t, app, http.MethodPost, signaturePath, web.SubmitSignatureRequest{
		Role: models.SignatureRoleClient, Name: "Alice", SignedAt: signedAt,
	}, alice)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"status":"DRAFT"`)

	status, body = do(t, app, http.MethodPost, signaturePath, web.SubmitSignatureRequest{
		Role: models.SignatureRoleTechnician, Name: "Tech", SignedAt: signedAt,
	}, asStaff)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"status":"SIGNED"`)

	status, body = do(t, app, http.MethodGet, sowPath, nil, alice)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"SIGNED"`)

	status, _ = do(t, app, http.MethodPatch, "/sows/"+string(sow.ID)+"/status",
		web.ChangeSOWStatusRequest{Status: models.SOWStatusDraft}, asStaff)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, app, http.MethodPatch, "/sows/"+string(sow.ID)+"/status",
		web.ChangeSOWStatusRequest{Status: models.SOWStatusCancelled}, asStaff)
	assert.Equal(t, http.StatusOK, status)
}

func TestAPIHandlers_Catalog(t *testing.T) {
	app := setupTestApp(t)

	status, body := do(t, app, http.MethodGet, "/services", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"total_count":2`)

	status, _ = do(t, app, http.MethodGet, "/services/sequencing", nil, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = do(t, app, http.MethodGet, "/services/retired", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "service_not_found", problemType(t, body))

	status, body = do(t, app, http.MethodPost, "/pricing/quote", web.QuoteRequest{ServiceID: "sequencing"}, nil)
	require.Equal(t, http.StatusOK, status)

	var quote web.QuoteResponse
	require.NoError(t, json.Unmarshal(body, &quote))
	assert.InDelta(t, 250, quote.Cost, 0.0001)

	status, _ = do(t, app, http.MethodPost, "/pricing/quote", web.QuoteRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, app, http.MethodGet, "/bundles", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"total_count":0`)

	status, _ = do(t, app, http.MethodGet, "/bundles/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
