package database

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"
	"github.com/watercoop/waterbill/internal/logger"
)

type DatabaseSuite struct {
	suite.Suite
	ctx context.Context
	db  *DB
}

func TestDatabase(t *testing.T) {
	suite.Run(t, new(DatabaseSuite))
}

func (s *DatabaseSuite) SetupTest() {
	s.ctx = context.Background()
	conn, err := sqlx.Connect("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	s.Require().NoError(err)
	conn.SetMaxOpenConns(1)
	s.db = NewFromSQLX(conn, logger.NewNopLogger())
	s.Require().NoError(s.db.Migrate(s.ctx))
}

func (s *DatabaseSuite) TearDownTest() {
	s.NoError(s.db.Close())
}

func (s *DatabaseSuite) TestMigrateIsIdempotent() {
	s.NoError(s.db.Migrate(s.ctx))

	pending, err := s.db.PendingMigrations(s.ctx)
	s.NoError(err)
	s.Empty(pending)

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, `SELECT COUNT(*) FROM schema_migrations`))
	s.Equal(len(Migrations()), count)
}

func (s *DatabaseSuite) insertClient(ctx context.Context, id, accountNumber string) error {
	_, err := s.db.GetQuerier(ctx).ExecContext(ctx,
		`INSERT INTO clients (id, account_number, first_name, last_name, created_at, updated_at)
		 VALUES (?, ?, 'Ana', 'Cruz', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		id, accountNumber,
	)
	return err
}

func (s *DatabaseSuite) TestWithTxCommits() {
	err := s.db.WithTx(s.ctx, func(ctx context.Context) error {
		return s.insertClient(ctx, "cli_1", "0000-AA")
	})
	s.NoError(err)

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, `SELECT COUNT(*) FROM clients`))
	s.Equal(1, count)
}

func (s *DatabaseSuite) TestWithTxRollsBack() {
	boom := errors.New("boom")
	err := s.db.WithTx(s.ctx, func(ctx context.Context) error {
		if err := s.insertClient(ctx, "cli_1", "0000-AA"); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, `SELECT COUNT(*) FROM clients`))
	s.Equal(0, count)
}

func (s *DatabaseSuite) TestNestedTxUsesSavepoint() {
	err := s.db.WithTx(s.ctx, func(ctx context.Context) error {
		if err := s.insertClient(ctx, "cli_1", "0000-AA"); err != nil {
			return err
		}
		inner := s.db.WithTx(ctx, func(ctx context.Context) error {
			if err := s.insertClient(ctx, "cli_2", "0001-AA"); err != nil {
				return err
			}
			return errors.New("inner failure")
		})
		s.Error(inner)
		return nil
	})
	s.NoError(err)

	var ids []string
	s.NoError(s.db.SelectContext(s.ctx, &ids, `SELECT id FROM clients ORDER BY id`))
	s.Equal([]string{"cli_1"}, ids)
}

func (s *DatabaseSuite) TestIsUniqueViolation() {
	s.NoError(s.insertClient(s.ctx, "cli_1", "0000-AA"))

	err := s.insertClient(s.ctx, "cli_2", "0000-AA")
	s.Error(err)
	s.True(IsUniqueViolation(err))
	s.True(IsUniqueViolation(err, "account_number"))
	s.False(IsUniqueViolation(err, "idempotency_key"))
	s.False(IsUniqueViolation(errors.New("other")))
}
