package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stackbill/stackbill/internal/domain/settings"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

type settingsRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

// NewSettingsRepository creates a settings provider backed by the settings
// table. Wrap it in settings.NewCachedProvider for hot paths.
func NewSettingsRepository(db postgres.IClient, logger *logger.Logger) settings.Provider {
	return &settingsRepository{
		db:     db,
		logger: logger,
	}
}

// Get resolves a setting by walking client, client group, then company
// scope. The first row found wins. A missing key in every scope is a not
// found error; callers use the settings.GetX helpers to apply defaults.
func (r *settingsRepository) Get(ctx context.Context, clientID, key string) (string, error) {
	q := r.db.Querier(ctx)

	var value string
	err := q.GetContext(ctx, &value, `
		SELECT value FROM settings
		WHERE company_id = $1 AND key = $2
		AND (
			(scope = 'client' AND scope_id = $3)
			OR (scope = 'client_group' AND scope_id = (SELECT group_id FROM clients WHERE id = $3))
			OR (scope = 'company')
		)
		ORDER BY CASE scope
			WHEN 'client' THEN 0
			WHEN 'client_group' THEN 1
			ELSE 2
		END
		LIMIT 1`,
		types.GetCompanyID(ctx), key, clientID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ierr.NewError(fmt.Sprintf("setting %s not found", key)).
				Mark(ierr.ErrNotFound)
		}
		return "", ierr.WithError(err).
			WithHint("setting query failed").
			Mark(ierr.ErrDatabase)
	}
	return value, nil
}
