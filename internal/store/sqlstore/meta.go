package sqlstore

import (
	"context"
	"database/sql"

	"github.com/rxtech-lab/nsplit-trading/internal/version"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"go.uber.org/zap"
)

const metaVersionKey = "version"

// StoreVersion returns the release that last opened the store.
func (s *SQLStore) StoreVersion(ctx context.Context) (string, error) {
	query, args, err := s.sb.Select("value").From("meta").Where("key = ?", metaVersionKey).ToSql()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeStoreFailed, "failed to build meta query", err)
	}

	var value string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		return "", err
	}

	return value, nil
}

// checkVersion refuses stores written by an incompatible release and stamps the current one.
func (s *SQLStore) checkVersion(ctx context.Context, binaryVersion string) error {
	stored, err := s.StoreVersion(ctx)

	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return errors.Wrap(errors.ErrCodeStoreNotReady, "failed to read store version", err)
	default:
		if err := version.CheckStoreCompatibility(binaryVersion, stored); err != nil {
			return errors.Wrap(errors.ErrCodeStoreNotReady, "incompatible store", err)
		}

		if stored == binaryVersion {
			return nil
		}
	}

	_, err = s.sb.Insert("meta").
		Columns("key", "value").
		Values(metaVersionKey, binaryVersion).
		Suffix(onConflict([]string{"key"}, []string{"value"})).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to record store version", err)
	}

	s.logger.Debug("Store version recorded", zap.String("previous", stored), zap.String("current", binaryVersion))

	return nil
}
