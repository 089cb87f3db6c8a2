package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/inkwellapp/inkwell-server/internal/approval"
	"github.com/inkwellapp/inkwell-server/internal/domain"
)

const approvalBase = "/api/v1/approval/sessions"

func (s *Server) registerApprovalRoutes() {
	tags := []string{"Approval"}

	huma.Register(s.api, huma.Operation{
		OperationID:   "createApprovalSession",
		Method:        http.MethodPost,
		Path:          approvalBase,
		Summary:       "Create approval session",
		Description:   "Groups catalog files by series and starts series approval",
		Tags:          tags,
		DefaultStatus: http.StatusCreated,
		Middlewares:   s.rateLimited(),
	}, s.handleCreateSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "getApprovalSession",
		Method:      http.MethodGet,
		Path:        approvalBase + "/{id}",
		Summary:     "Get approval session",
		Description: "Returns the full session state",
		Tags:        tags,
	}, s.handleGetSession)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteApprovalSession",
		Method:        http.MethodDelete,
		Path:          approvalBase + "/{id}",
		Summary:       "Delete approval session",
		Description:   "Abandons a session",
		Tags:          tags,
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchApprovalSeries",
		Method:      http.MethodPost,
		Path:        approvalBase + "/{id}/series/search",
		Summary:     "Search series",
		Description: "Re-runs the current group's series search with a custom query",
		Tags:        tags,
		Middlewares: s.rateLimited(),
	}, s.handleSearchSeries)

	huma.Register(s.api, huma.Operation{
		OperationID: "loadMoreApprovalSeries",
		Method:      http.MethodPost,
		Path:        approvalBase + "/{id}/series/load-more",
		Summary:     "Load more series results",
		Description: "Appends the next page of series candidates for the current group",
		Tags:        tags,
		Middlewares: s.rateLimited(),
	}, s.handleLoadMoreSeries)

	huma.Register(s.api, huma.Operation{
		OperationID: "approveApprovalSeries",
		Method:      http.MethodPost,
		Path:        approvalBase + "/{id}/series/approve",
		Summary:     "Approve series",
		Description: "Binds the current group to a series and advances; file review starts after the last group",
		Tags:        tags,
		Middlewares: s.rateLimited(),
	}, s.handleApproveSeries)

	huma.Register(s.api, huma.Operation{
		OperationID: "skipApprovalSeries",
		Method:      http.MethodPost,
		Path:        approvalBase + "/{id}/series/skip",
		Summary:     "Skip series",
		Description: "Leaves the current group's files untouched and advances",
		Tags:        tags,
		Middlewares: s.rateLimited(),
	}, s.handleSkipSeries)

	huma.Register(s.api, huma.Operation{
		OperationID: "navigateApprovalSeries",
		Method:      http.MethodPost,
		Path:        approvalBase + "/{id}/series/navigate",
		Summary:     "Navigate to series group",
		Description: "Moves the cursor to another series group",
		Tags:        tags,
	}, s.handleNavigateSeries)

	huma.Register(s.api, huma.Operation{
		OperationID: "resetApprovalSeries",
		Method:      http.MethodPost,
		Path:        approvalBase + "/{id}/series/{index}/reset",
		Summary:     "Reset series group",
		Description: "Returns a decided group to pending and reopens series approval",
		Tags:        tags,
	}, s.handleResetSeries)

	huma.Register(s.api, huma.Operation{
		OperationID: "moveApprovalFile",
		Method:      http.MethodPost,
		Path:        approvalBase + "/{id}/files/{fileId}/move",
		Summary:     "Move file to series group",
		Description: "Moves a file between series groups",
		Tags:        tags,
		Middlewares: s.rateLimited(),
	}, s.handleMoveFile)

	huma.Register(s.api, huma.Operation{
		OperationID: "selectApprovalIssue",
		Method:      http.MethodPost,
		Path:        approvalBase + "/{id}/files/{fileId}/issue",
		Summary:     "Select issue",
		Description: "Matches a file to an issue, volume or chapter chosen by the user",
		Tags:        tags,
		Middlewares: s.rateLimited(),
	}, s.handleSelectIssue)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateApprovalFields",
		Method:      http.MethodPatch,
		Path:        approvalBase + "/{id}/files/{fileId}/fields",
		Summary:     "Update field approvals",
		Description: "Approves, rejects or edits proposed field values",
		Tags:        tags,
	}, s.handleUpdateFields)

	huma.Register(s.api, huma.Operation{
		OperationID: "previewApprovalRename",
		Method:      http.MethodPost,
		Path:        approvalBase + "/{id}/files/{fileId}/rename-preview",
		Summary:     "Regenerate rename preview",
		Description: "Recomputes the proposed filename with optional field overrides",
		Tags:        tags,
	}, s.handleRenamePreview)

	huma.Register(s.api, huma.Operation{
		OperationID: "rejectApprovalFile",
		Method:      http.MethodPost,
		Path:        approvalBase + "/{id}/files/{fileId}/reject",
		Summary:     "Reject file",
		Description: "Excludes a file from apply",
		Tags:        tags,
	}, s.handleRejectFile)

	huma.Register(s.api, huma.Operation{
		OperationID: "acceptAllApprovalFiles",
		Method:      http.MethodPost,
		Path:        approvalBase + "/{id}/files/accept-all",
		Summary:     "Accept all files",
		Description: "Approves every field of every matched file",
		Tags:        tags,
	}, s.handleAcceptAll)

	huma.Register(s.api, huma.Operation{
		OperationID: "rejectAllApprovalFiles",
		Method:      http.MethodPost,
		Path:        approvalBase + "/{id}/files/reject-all",
		Summary:     "Reject all files",
		Description: "Excludes every file from apply",
		Tags:        tags,
	}, s.handleRejectAll)

	huma.Register(s.api, huma.Operation{
		OperationID: "applyApprovalSession",
		Method:      http.MethodPost,
		Path:        approvalBase + "/{id}/apply",
		Summary:     "Apply changes",
		Description: "Writes approved metadata, renames files and syncs the catalog",
		Tags:        tags,
	}, s.handleApply)
}

// === DTOs ===

// SessionPathInput identifies a session.
type SessionPathInput struct {
	ID string `path:"id" doc:"Approval session ID"`
}

// FilePathInput identifies a file within a session.
type FilePathInput struct {
	ID     string `path:"id" doc:"Approval session ID"`
	FileID string `path:"fileId" doc:"Catalog file ID"`
}

// SessionOutput wraps a session for Huma.
type SessionOutput struct {
	Body *domain.ApprovalSession
}

// AdvanceOutput wraps the result of approving or skipping a series.
type AdvanceOutput struct {
	Body *approval.AdvanceResult
}

// FileChangeOutput wraps a single file's review record.
type FileChangeOutput struct {
	Body *domain.FileChange
}

// ApplyOutput wraps an apply summary.
type ApplyOutput struct {
	Body *domain.ApplyResult
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	LibraryID string   `json:"library_id" validate:"required" doc:"Library the files belong to"`
	FileIDs   []string `json:"file_ids" validate:"required,min=1,max=500,dive,required" doc:"Catalog file IDs to review"`
}

// CreateSessionInput wraps the create request for Huma.
type CreateSessionInput struct {
	Body CreateSessionRequest
}

// SearchSeriesRequest is the request body for a custom series search.
type SearchSeriesRequest struct {
	Query string `json:"query" validate:"required,max=200" doc:"Search text"`
}

// SearchSeriesInput wraps the search request for Huma.
type SearchSeriesInput struct {
	ID   string `path:"id" doc:"Approval session ID"`
	Body SearchSeriesRequest
}

// ApproveSeriesRequest is the request body for approving a series.
type ApproveSeriesRequest struct {
	SelectedSeriesID      string `json:"selected_series_id" validate:"required,series_key" doc:"Search result supplying series metadata, as source:id"`
	IssueMatchingSeriesID string `json:"issue_matching_series_id,omitempty" validate:"series_key" doc:"Optional search result used only for issue numbers"`
}

// ApproveSeriesInput wraps the approve request for Huma.
type ApproveSeriesInput struct {
	ID   string `path:"id" doc:"Approval session ID"`
	Body ApproveSeriesRequest
}

// NavigateRequest is the request body for moving the series cursor.
type NavigateRequest struct {
	Index int `json:"index" validate:"gte=0" doc:"Series group index"`
}

// NavigateInput wraps the navigate request for Huma.
type NavigateInput struct {
	ID   string `path:"id" doc:"Approval session ID"`
	Body NavigateRequest
}

// ResetSeriesInput identifies the group to reset.
type ResetSeriesInput struct {
	ID    string `path:"id" doc:"Approval session ID"`
	Index int    `path:"index" doc:"Series group index"`
}

// MoveFileRequest is the request body for moving a file.
type MoveFileRequest struct {
	TargetIndex int `json:"target_index" validate:"gte=0" doc:"Destination series group index"`
}

// MoveFileInput wraps the move request for Huma.
type MoveFileInput struct {
	ID     string `path:"id" doc:"Approval session ID"`
	FileID string `path:"fileId" doc:"Catalog file ID"`
	Body   MoveFileRequest
}

// SelectIssueRequest is the request body for manual issue selection.
type SelectIssueRequest struct {
	IssueID string `json:"issue_id" validate:"required" doc:"Issue id, or volume-N / chapter-N for sources without an issue index"`
}

// SelectIssueInput wraps the select request for Huma.
type SelectIssueInput struct {
	ID     string `path:"id" doc:"Approval session ID"`
	FileID string `path:"fileId" doc:"Catalog file ID"`
	Body   SelectIssueRequest
}

// FieldUpdateRequest changes one field's decision or value.
type FieldUpdateRequest struct {
	Approved    *bool   `json:"approved,omitempty" doc:"Whether the field will be applied"`
	EditedValue *string `json:"edited_value,omitempty" validate:"omitempty,max=4000" doc:"Replacement for the proposed value"`
}

// UpdateFieldsRequest is the request body for field approvals.
type UpdateFieldsRequest struct {
	Fields map[string]FieldUpdateRequest `json:"fields" validate:"required,min=1,dive,keys,field,endkeys" doc:"Updates keyed by field name"`
}

// UpdateFieldsInput wraps the field update request for Huma.
type UpdateFieldsInput struct {
	ID     string `path:"id" doc:"Approval session ID"`
	FileID string `path:"fileId" doc:"Catalog file ID"`
	Body   UpdateFieldsRequest
}

// RenamePreviewRequest is the request body for a rename preview.
type RenamePreviewRequest struct {
	FieldValues map[string]string `json:"field_values,omitempty" validate:"omitempty,dive,keys,field,endkeys" doc:"Field values overriding the proposal"`
}

// RenamePreviewInput wraps the preview request for Huma.
type RenamePreviewInput struct {
	ID     string `path:"id" doc:"Approval session ID"`
	FileID string               `path:"fileId" doc:"Catalog file ID"`
	Body   RenamePreviewRequest `required:"false"`
}

// === Handlers ===

func (s *Server) handleCreateSession(ctx context.Context, input *CreateSessionInput) (*SessionOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	sess, err := s.services.Approval.CreateSession(ctx, input.Body.LibraryID, input.Body.FileIDs)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Approval session created",
		"session_id", sess.ID,
		"library_id", sess.LibraryID,
		"files", len(input.Body.FileIDs),
		"groups", len(sess.SeriesGroups),
	)

	return &SessionOutput{Body: sess}, nil
}

func (s *Server) handleGetSession(ctx context.Context, input *SessionPathInput) (*SessionOutput, error) {
	sess, err := s.services.Approval.GetSession(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: sess}, nil
}

func (s *Server) handleDeleteSession(ctx context.Context, input *SessionPathInput) (*struct{}, error) {
	if err := s.services.Approval.DeleteSession(ctx, input.ID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleSearchSeries(ctx context.Context, input *SearchSeriesInput) (*SessionOutput, error) {
	input.Body.Query = strings.TrimSpace(input.Body.Query)
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	sess, err := s.services.Approval.SearchSeriesCustom(ctx, input.ID, input.Body.Query)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: sess}, nil
}

func (s *Server) handleLoadMoreSeries(ctx context.Context, input *SessionPathInput) (*SessionOutput, error) {
	sess, err := s.services.Approval.LoadMoreSeriesResults(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: sess}, nil
}

func (s *Server) handleApproveSeries(ctx context.Context, input *ApproveSeriesInput) (*AdvanceOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	res, err := s.services.Approval.ApproveSeries(ctx, input.ID, input.Body.SelectedSeriesID, input.Body.IssueMatchingSeriesID)
	if err != nil {
		return nil, err
	}
	return &AdvanceOutput{Body: res}, nil
}

func (s *Server) handleSkipSeries(ctx context.Context, input *SessionPathInput) (*AdvanceOutput, error) {
	res, err := s.services.Approval.SkipSeries(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &AdvanceOutput{Body: res}, nil
}

func (s *Server) handleNavigateSeries(ctx context.Context, input *NavigateInput) (*SessionOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	sess, err := s.services.Approval.NavigateToSeriesGroup(ctx, input.ID, input.Body.Index)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: sess}, nil
}

func (s *Server) handleResetSeries(ctx context.Context, input *ResetSeriesInput) (*SessionOutput, error) {
	sess, err := s.services.Approval.ResetSeriesGroup(ctx, input.ID, input.Index)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: sess}, nil
}

func (s *Server) handleMoveFile(ctx context.Context, input *MoveFileInput) (*SessionOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	sess, err := s.services.Approval.MoveFileToSeriesGroup(ctx, input.ID, input.FileID, input.Body.TargetIndex)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: sess}, nil
}

func (s *Server) handleSelectIssue(ctx context.Context, input *SelectIssueInput) (*FileChangeOutput, error) {
	input.Body.IssueID = strings.TrimSpace(input.Body.IssueID)
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	fc, err := s.services.Approval.ManualSelectIssue(ctx, input.ID, input.FileID, input.Body.IssueID)
	if err != nil {
		return nil, err
	}
	return &FileChangeOutput{Body: fc}, nil
}

func (s *Server) handleUpdateFields(ctx context.Context, input *UpdateFieldsInput) (*FileChangeOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	updates := make(map[string]approval.FieldUpdate, len(input.Body.Fields))
	for name, u := range input.Body.Fields {
		updates[name] = approval.FieldUpdate{Approved: u.Approved, EditedValue: u.EditedValue}
	}

	fc, err := s.services.Approval.UpdateFieldApprovals(ctx, input.ID, input.FileID, updates)
	if err != nil {
		return nil, err
	}
	return &FileChangeOutput{Body: fc}, nil
}

func (s *Server) handleRenamePreview(ctx context.Context, input *RenamePreviewInput) (*FileChangeOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	fc, err := s.services.Approval.RegenerateRenamePreview(ctx, input.ID, input.FileID, input.Body.FieldValues)
	if err != nil {
		return nil, err
	}
	return &FileChangeOutput{Body: fc}, nil
}

func (s *Server) handleRejectFile(ctx context.Context, input *FilePathInput) (*FileChangeOutput, error) {
	fc, err := s.services.Approval.RejectFile(ctx, input.ID, input.FileID)
	if err != nil {
		return nil, err
	}
	return &FileChangeOutput{Body: fc}, nil
}

func (s *Server) handleAcceptAll(ctx context.Context, input *SessionPathInput) (*SessionOutput, error) {
	sess, err := s.services.Approval.AcceptAllFiles(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: sess}, nil
}

func (s *Server) handleRejectAll(ctx context.Context, input *SessionPathInput) (*SessionOutput, error) {
	sess, err := s.services.Approval.RejectAllFiles(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: sess}, nil
}

func (s *Server) handleApply(ctx context.Context, input *SessionPathInput) (*ApplyOutput, error) {
	res, err := s.services.Approval.ApplyChanges(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &ApplyOutput{Body: res}, nil
}
