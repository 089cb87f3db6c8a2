package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwellapp/inkwell-server/internal/approval"
	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/search"
)

// fakeApproval records calls and returns canned sessions.
type fakeApproval struct {
	sessions map[string]*domain.ApprovalSession
	err      error

	createdLibrary string
	createdFiles   []string
	approved       [2]string
	updates        map[string]approval.FieldUpdate
	preview        map[string]string
	deleted        string
}

func newFakeApproval() *fakeApproval {
	return &fakeApproval{sessions: map[string]*domain.ApprovalSession{
		"aps-1": {
			ID:        "aps-1",
			Status:    domain.SessionStatusFileReview,
			LibraryID: "lib-1",
			FileChanges: map[string]*domain.FileChange{
				"f1": {FileID: "f1", Filename: "Batman #1.cbz", Status: domain.FileChangeMatched},
			},
		},
	}}
}

func (f *fakeApproval) session(id string) (*domain.ApprovalSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	sess, ok := f.sessions[id]
	if !ok {
		return nil, domainerrors.NotFound("Session not found")
	}
	return sess, nil
}

func (f *fakeApproval) file(id, fileID string) (*domain.FileChange, error) {
	sess, err := f.session(id)
	if err != nil {
		return nil, err
	}
	fc, ok := sess.FileChanges[fileID]
	if !ok {
		return nil, domainerrors.NotFoundf("file %s not in session", fileID)
	}
	return fc, nil
}

func (f *fakeApproval) advance(id string) (*approval.AdvanceResult, error) {
	sess, err := f.session(id)
	if err != nil {
		return nil, err
	}
	return &approval.AdvanceResult{HasMore: false, NextIndex: 1, Session: sess}, nil
}

func (f *fakeApproval) CreateSession(_ context.Context, libraryID string, fileIDs []string) (*domain.ApprovalSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.createdLibrary, f.createdFiles = libraryID, fileIDs
	return &domain.ApprovalSession{ID: "aps-new", Status: domain.SessionStatusSeriesApproval, LibraryID: libraryID}, nil
}

func (f *fakeApproval) GetSession(_ context.Context, id string) (*domain.ApprovalSession, error) {
	return f.session(id)
}

func (f *fakeApproval) DeleteSession(_ context.Context, id string) error {
	f.deleted = id
	return nil
}

func (f *fakeApproval) SearchSeriesCustom(_ context.Context, id, _ string) (*domain.ApprovalSession, error) {
	return f.session(id)
}

func (f *fakeApproval) LoadMoreSeriesResults(_ context.Context, id string) (*domain.ApprovalSession, error) {
	return f.session(id)
}

func (f *fakeApproval) ApproveSeries(_ context.Context, id, selected, issueMatching string) (*approval.AdvanceResult, error) {
	f.approved = [2]string{selected, issueMatching}
	return f.advance(id)
}

func (f *fakeApproval) SkipSeries(_ context.Context, id string) (*approval.AdvanceResult, error) {
	return f.advance(id)
}

func (f *fakeApproval) NavigateToSeriesGroup(_ context.Context, id string, _ int) (*domain.ApprovalSession, error) {
	return f.session(id)
}

func (f *fakeApproval) ResetSeriesGroup(_ context.Context, id string, _ int) (*domain.ApprovalSession, error) {
	return f.session(id)
}

func (f *fakeApproval) MoveFileToSeriesGroup(_ context.Context, id, _ string, _ int) (*domain.ApprovalSession, error) {
	return f.session(id)
}

func (f *fakeApproval) ManualSelectIssue(_ context.Context, id, fileID, _ string) (*domain.FileChange, error) {
	return f.file(id, fileID)
}

func (f *fakeApproval) UpdateFieldApprovals(_ context.Context, id, fileID string, updates map[string]approval.FieldUpdate) (*domain.FileChange, error) {
	f.updates = updates
	return f.file(id, fileID)
}

func (f *fakeApproval) RegenerateRenamePreview(_ context.Context, id, fileID string, values map[string]string) (*domain.FileChange, error) {
	f.preview = values
	return f.file(id, fileID)
}

func (f *fakeApproval) RejectFile(_ context.Context, id, fileID string) (*domain.FileChange, error) {
	return f.file(id, fileID)
}

func (f *fakeApproval) AcceptAllFiles(_ context.Context, id string) (*domain.ApprovalSession, error) {
	return f.session(id)
}

func (f *fakeApproval) RejectAllFiles(_ context.Context, id string) (*domain.ApprovalSession, error) {
	return f.session(id)
}

func (f *fakeApproval) ApplyChanges(_ context.Context, id string) (*domain.ApplyResult, error) {
	if _, err := f.session(id); err != nil {
		return nil, err
	}
	return &domain.ApplyResult{Total: 1, Successful: 1, Results: []domain.FileApplyResult{{FileID: "f1", Success: true}}}, nil
}

type fakeSearcher struct {
	params search.SearchParams
	count  uint64
	err    error
}

func (f *fakeSearcher) Search(_ context.Context, params search.SearchParams) (*search.SearchResult, error) {
	f.params = params
	return &search.SearchResult{Query: params.Query, Total: 1, Hits: []search.SearchHit{{ID: "f1", Type: search.DocTypeFile, Name: "Batman #1.cbz"}}}, nil
}

func (f *fakeSearcher) DocumentCount() (uint64, error) {
	return f.count, f.err
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeCounter int

func (c fakeCounter) Len() int { return int(c) }

type testServer struct {
	*Server
	api      humatest.TestAPI
	approval *fakeApproval
	search   *fakeSearcher
}

func setupTestServer(t *testing.T, cfg config.ServerConfig) *testServer {
	t.Helper()

	fa := newFakeApproval()
	fs := &fakeSearcher{count: 3}
	s := NewServer(&Services{
		Approval: fa,
		Search:   fs,
		Catalog:  fakePinger{},
		Sessions: fakeCounter(1),
	}, cfg, nil)
	t.Cleanup(s.Close)

	return &testServer{
		Server:   s,
		api:      humatest.Wrap(t, s.api),
		approval: fa,
		search:   fs,
	}
}

// envelope decodes the shared response envelope.
type envelope struct {
	V       int             `json:"v"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	return env
}

func TestCreateSession(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	resp := ts.api.Post("/api/v1/approval/sessions", map[string]any{
		"library_id": "lib-1",
		"file_ids":   []string{"f1", "f2"},
	})

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	env := decodeEnvelope(t, resp)
	assert.True(t, env.Success)
	assert.Equal(t, 1, env.V)

	var sess domain.ApprovalSession
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	assert.Equal(t, "aps-new", sess.ID)
	assert.Equal(t, domain.SessionStatusSeriesApproval, sess.Status)
	assert.Equal(t, "lib-1", ts.approval.createdLibrary)
	assert.Equal(t, []string{"f1", "f2"}, ts.approval.createdFiles)
}

func TestCreateSession_EmptyFiles(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	resp := ts.api.Post("/api/v1/approval/sessions", map[string]any{
		"library_id": "lib-1",
		"file_ids":   []string{},
	})

	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
	env := decodeEnvelope(t, resp)
	assert.False(t, env.Success)
	assert.Equal(t, string(domainerrors.CodeValidation), env.Code)

	var details map[string]string
	require.NoError(t, json.Unmarshal(env.Details, &details))
	assert.Contains(t, details, "file_ids")
	assert.Nil(t, ts.approval.createdFiles)
}

func TestDomainErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   domainerrors.Code
	}{
		{"not found", domainerrors.NotFound("Session not found"), http.StatusNotFound, domainerrors.CodeNotFound},
		{"validation", domainerrors.Validation("series group index out of range"), http.StatusBadRequest, domainerrors.CodeValidation},
		{"conflict", domainerrors.Conflict("session is applying"), http.StatusConflict, domainerrors.CodeConflict},
		{"upstream", domainerrors.Upstream(errors.New("timeout"), "metadata search failed"), http.StatusBadGateway, domainerrors.CodeUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t, config.ServerConfig{})
			ts.approval.err = tt.err

			resp := ts.api.Get("/api/v1/approval/sessions/aps-1")

			assert.Equal(t, tt.status, resp.Code)
			env := decodeEnvelope(t, resp)
			assert.False(t, env.Success)
			assert.Equal(t, string(tt.code), env.Code)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestGetSession_Unknown(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	resp := ts.api.Get("/api/v1/approval/sessions/aps-missing")

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "Session not found", decodeEnvelope(t, resp).Error)
}

func TestDeleteSession(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	resp := ts.api.Delete("/api/v1/approval/sessions/aps-1")

	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "aps-1", ts.approval.deleted)
}

func TestApproveSeries(t *testing.T) {
	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"source key", map[string]any{"selected_series_id": "comicvine:796"}, http.StatusOK},
		{"bare id with issue matching", map[string]any{"selected_series_id": "796", "issue_matching_series_id": "comicvine:42"}, http.StatusOK},
		{"half key", map[string]any{"selected_series_id": "comicvine:"}, http.StatusBadRequest},
		{"empty selection", map[string]any{"selected_series_id": ""}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t, config.ServerConfig{})

			resp := ts.api.Post("/api/v1/approval/sessions/aps-1/series/approve", tt.body)

			require.Equal(t, tt.status, resp.Code, resp.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			var res approval.AdvanceResult
			require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &res))
			assert.Equal(t, "aps-1", res.Session.ID)
			assert.Equal(t, tt.body["selected_series_id"], ts.approval.approved[0])
		})
	}
}

func TestUpdateFields(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	resp := ts.api.Patch("/api/v1/approval/sessions/aps-1/files/f1/fields", map[string]any{
		"fields": map[string]any{
			"title":  map[string]any{"approved": false},
			"rename": map[string]any{"edited_value": "Batman 001.cbz"},
		},
	})

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Len(t, ts.approval.updates, 2)
	require.NotNil(t, ts.approval.updates["title"].Approved)
	assert.False(t, *ts.approval.updates["title"].Approved)
	assert.Nil(t, ts.approval.updates["title"].EditedValue)
	require.NotNil(t, ts.approval.updates["rename"].EditedValue)
	assert.Equal(t, "Batman 001.cbz", *ts.approval.updates["rename"].EditedValue)
}

func TestUpdateFields_UnknownField(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	resp := ts.api.Patch("/api/v1/approval/sessions/aps-1/files/f1/fields", map[string]any{
		"fields": map[string]any{"shoe_size": map[string]any{"approved": true}},
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Nil(t, ts.approval.updates)
}

func TestRenamePreview(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	resp := ts.api.Post("/api/v1/approval/sessions/aps-1/files/f1/rename-preview", map[string]any{
		"field_values": map[string]string{"number": "2"},
	})

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, map[string]string{"number": "2"}, ts.approval.preview)

	var fc domain.FileChange
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &fc))
	assert.Equal(t, "f1", fc.FileID)
}

func TestFileRoutes_UnknownFile(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	for _, path := range []string{
		"/api/v1/approval/sessions/aps-1/files/nope/reject",
		"/api/v1/approval/sessions/aps-1/files/nope/issue",
	} {
		resp := ts.api.Post(path, map[string]any{"issue_id": "4000-1"})
		assert.Equal(t, http.StatusNotFound, resp.Code, path)
	}
}

func TestBulkAndApplyRoutes(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	for _, path := range []string{
		"/api/v1/approval/sessions/aps-1/files/accept-all",
		"/api/v1/approval/sessions/aps-1/files/reject-all",
		"/api/v1/approval/sessions/aps-1/series/skip",
		"/api/v1/approval/sessions/aps-1/series/load-more",
		"/api/v1/approval/sessions/aps-1/series/0/reset",
	} {
		resp := ts.api.Post(path)
		assert.Equal(t, http.StatusOK, resp.Code, path)
	}

	resp := ts.api.Post("/api/v1/approval/sessions/aps-1/apply")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var res domain.ApplyResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &res))
	assert.Equal(t, 1, res.Successful)
}

func TestRateLimit(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 1})
	body := map[string]any{"library_id": "lib-1", "file_ids": []string{"f1"}}

	first := ts.api.Post("/api/v1/approval/sessions", body)
	second := ts.api.Post("/api/v1/approval/sessions", body)

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, ts.api.Get("/api/v1/approval/sessions/aps-1").Code)
}

func TestSearch(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	resp := ts.api.Get("/api/v1/search?q=batman&types=file&limit=5")

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "batman", ts.search.params.Query)
	assert.Equal(t, []string{"file"}, ts.search.params.Types)
	assert.Equal(t, 5, ts.search.params.Limit)
}

func TestSearch_UnknownType(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	resp := ts.api.Get("/api/v1/search?q=batman&types=podcast")

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		catalog Pinger
		search  CatalogSearcher
		want    string
	}{
		{"healthy", fakePinger{}, &fakeSearcher{count: 2}, "healthy"},
		{"database down", fakePinger{err: errors.New("closed")}, &fakeSearcher{}, "unhealthy"},
		{"search missing", fakePinger{}, nil, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&Services{
				Approval: newFakeApproval(),
				Search:   tt.search,
				Catalog:  tt.catalog,
				Sessions: fakeCounter(0),
			}, config.ServerConfig{}, nil)
			api := humatest.Wrap(t, s.api)

			resp := api.Get("/health")

			require.Equal(t, http.StatusOK, resp.Code)
			var health HealthResponse
			require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &health))
			assert.Equal(t, tt.want, health.Status)
			assert.Len(t, health.Components, 3)
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	w := httptest.NewRecorder()
	ts.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, string(domainerrors.CodeNotFound), env.Code)
}

func TestEnvelopeTransformer(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		in      any
		success bool
		code    string
	}{
		{"success", "200", map[string]string{"id": "aps-1"}, true, ""},
		{"no content", "204", nil, true, ""},
		{"api error", "404", &APIError{Code: "NOT_FOUND", Message: "Session not found"}, false, "NOT_FOUND"},
		{"foreign error body", "422", map[string]string{"title": "Unprocessable Entity"}, false, "VALIDATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := EnvelopeTransformer(nil, tt.status, tt.in)
			require.NoError(t, err)

			raw, err := json.Marshal(out)
			require.NoError(t, err)
			var env envelope
			require.NoError(t, json.Unmarshal(raw, &env))

			assert.Equal(t, 1, env.V)
			assert.Equal(t, tt.success, env.Success)
			assert.Equal(t, tt.code, env.Code)
		})
	}
}
