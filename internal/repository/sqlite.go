package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/BerylCAtieno/iac-workitem-api/internal/models"
)

// columns maps update attributes to work_items columns. Only attributes
// listed here can be written by Update.
var columns = map[string]string{
	models.AttrAnalysisStatus:                "analysis_status",
	models.AttrAnalysisProgress:              "analysis_progress",
	models.AttrIaCGenerationStatus:           "iac_generation_status",
	models.AttrIaCGenerationProgress:         "iac_generation_progress",
	models.AttrTokenCount:                    "token_count",
	models.AttrExceedsTokenLimit:             "exceeds_token_limit",
	models.AttrSupportingDocumentID:          "supporting_document_id",
	models.AttrSupportingDocumentAdded:       "supporting_document_added",
	models.AttrSupportingDocumentName:        "supporting_document_name",
	models.AttrSupportingDocumentType:        "supporting_document_type",
	models.AttrSupportingDocumentDescription: "supporting_document_description",
	models.AttrIaCGeneratedFileType:          "iac_generated_file_type",
	models.AttrLastModified:                  "last_modified",
}

const selectWorkItem = `
	SELECT user_id, file_id, file_name, file_type, upload_mode,
	       analysis_status, analysis_progress, iac_generation_status, iac_generation_progress,
	       token_count, exceeds_token_limit,
	       supporting_document_id, supporting_document_added, supporting_document_name,
	       supporting_document_type, supporting_document_description,
	       iac_generated_file_type, upload_date, last_modified, s3_prefix
	FROM work_items
`

type sqliteRepository struct {
	db *sqlx.DB
}

func NewSQLiteRepository(db *sqlx.DB) Repository {
	return &sqliteRepository{db: db}
}

func (r *sqliteRepository) Create(ctx context.Context, item *models.WorkItem) error {
	query := `
		INSERT INTO work_items (
			user_id, file_id, file_name, file_type, upload_mode,
			analysis_status, analysis_progress, iac_generation_status, iac_generation_progress,
			token_count, exceeds_token_limit,
			supporting_document_id, supporting_document_added, supporting_document_name,
			supporting_document_type, supporting_document_description,
			iac_generated_file_type, upload_date, last_modified, s3_prefix
		) VALUES (
			:user_id, :file_id, :file_name, :file_type, :upload_mode,
			:analysis_status, :analysis_progress, :iac_generation_status, :iac_generation_progress,
			:token_count, :exceeds_token_limit,
			:supporting_document_id, :supporting_document_added, :supporting_document_name,
			:supporting_document_type, :supporting_document_description,
			:iac_generated_file_type, :upload_date, :last_modified, :s3_prefix
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		if sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return fmt.Errorf("%w: %s/%s", ErrAlreadyExists, item.UserID, item.FileID)
		}
		return classifySQLite(fmt.Errorf("failed to insert work item: %w", err))
	}

	return nil
}

func (r *sqliteRepository) Get(ctx context.Context, userID, fileID string) (*models.WorkItem, error) {
	return r.get(ctx, r.db, userID, fileID)
}

func (r *sqliteRepository) get(ctx context.Context, q sqlx.QueryerContext, userID, fileID string) (*models.WorkItem, error) {
	var item models.WorkItem
	err := sqlx.GetContext(ctx, q, &item, selectWorkItem+` WHERE user_id = $1 AND file_id = $2`, userID, fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifySQLite(fmt.Errorf("failed to get work item: %w", err))
	}
	return &item, nil
}

func (r *sqliteRepository) Update(ctx context.Context, userID, fileID string, upd models.WorkItemUpdate) (*models.WorkItem, error) {
	assignments := upd.Assignments()
	if len(assignments) == 0 {
		return nil, fmt.Errorf("update of %s/%s sets no attributes", userID, fileID)
	}

	var set []string
	var args []any
	for _, a := range assignments {
		col, ok := columns[a.Attr]
		if !ok {
			return nil, fmt.Errorf("attribute %q is not updatable", a.Attr)
		}
		args = append(args, a.Value)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	args = append(args, userID, fileID)
	where := fmt.Sprintf("user_id = $%d AND file_id = $%d", len(args)-1, len(args))
	if upd.IfAnalysisStatus != nil {
		args = append(args, string(*upd.IfAnalysisStatus))
		where += fmt.Sprintf(" AND analysis_status = $%d", len(args))
	}
	if upd.IfIaCGenerationStatus != nil {
		args = append(args, string(*upd.IfIaCGenerationStatus))
		where += fmt.Sprintf(" AND iac_generation_status = $%d", len(args))
	}

	query := "UPDATE work_items SET " + strings.Join(set, ", ") + " WHERE " + where

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classifySQLite(fmt.Errorf("failed to begin update: %w", err))
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, classifySQLite(fmt.Errorf("failed to update work item: %w", err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, classifySQLite(fmt.Errorf("failed to read update result: %w", err))
	}

	item, err := r.get(ctx, tx, userID, fileID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, userID, fileID)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrConditionFailed, userID, fileID)
	}

	if err := tx.Commit(); err != nil {
		return nil, classifySQLite(fmt.Errorf("failed to commit update: %w", err))
	}

	return item, nil
}

func (r *sqliteRepository) Query(ctx context.Context, userID string) ([]*models.WorkItem, error) {
	var items []*models.WorkItem
	if err := sqlx.SelectContext(ctx, r.db, &items, selectWorkItem+` WHERE user_id = $1`, userID); err != nil {
		return nil, classifySQLite(fmt.Errorf("failed to query work items: %w", err))
	}
	return items, nil
}

func (r *sqliteRepository) Delete(ctx context.Context, userID, fileID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM work_items WHERE user_id = $1 AND file_id = $2`, userID, fileID); err != nil {
		return classifySQLite(fmt.Errorf("failed to delete work item: %w", err))
	}
	return nil
}

func classifySQLite(err error) error {
	switch sqliteCode(err) & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return &TransientError{Err: err}
	}
	return err
}

// sqliteCode returns the extended result code carried by err, or 0 when err
// did not come from the driver.
func sqliteCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}
