package repository

import (
	"context"
	"errors"
	"fmt"

	"docsync/internal/middleware"
	"docsync/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// RoleRepositoryImpl reads document roles from the editor application's
// database. Read-only: the sharing UI writes this table, this service never
// does.
type RoleRepositoryImpl struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) *RoleRepositoryImpl {
	return &RoleRepositoryImpl{db: db}
}

// Resolve returns the user's role on a document, RoleNone when the document was
// never shared with them. Satisfies collab.RoleResolver.
func (r *RoleRepositoryImpl) Resolve(ctx context.Context, documentID, userID string) (models.Role, error) {
	ctx, span := middleware.StartSpan(ctx, "RoleRepository.Resolve",
		attribute.String("document.id", documentID),
		attribute.String("user.id", userID),
	)
	defer span.End()

	var row models.DocumentRole
	err := r.db.WithContext(ctx).
		First(&row, "document_id = ? AND user_id = ?", documentID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RoleNone, nil
	}
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return models.RoleNone, fmt.Errorf("failed to look up role: %w", err)
	}

	return row.Role, nil
}
