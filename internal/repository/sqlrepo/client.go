package sqlrepo

import (
	"context"
	"strings"

	"github.com/watercoop/waterbill/internal/cache"
	"github.com/watercoop/waterbill/internal/database"
	domainClient "github.com/watercoop/waterbill/internal/domain/client"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/logger"
	"github.com/watercoop/waterbill/internal/types"
)

const clientColumns = `id, account_number, first_name, middle_name, last_name, contact_number, email,
	address, meter_number, initial_meter_reading, status, created_at, updated_at, created_by, updated_by`

type clientRepository struct {
	db    *database.DB
	log   *logger.Logger
	cache cache.Cache
}

func NewClientRepository(db *database.DB, log *logger.Logger, cache cache.Cache) domainClient.Repository {
	return &clientRepository{db: db, log: log, cache: cache}
}

func (r *clientRepository) Create(ctx context.Context, c *domainClient.Client) error {
	query := `
		INSERT INTO clients (
			id, account_number, first_name, middle_name, last_name, contact_number, email,
			address, meter_number, initial_meter_reading, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :account_number, :first_name, :middle_name, :last_name, :contact_number, :email,
			:address, :meter_number, :initial_meter_reading, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.log.Debugw("creating client",
		"client_id", c.ID,
		"account_number", c.AccountNumber,
	)

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, c); err != nil {
		if database.IsUniqueViolation(err, "account_number") {
			return ierr.WithError(err).
				WithHintf("Account number %s is already issued", c.AccountNumber).
				WithReportableDetails(map[string]interface{}{
					"account_number": c.AccountNumber,
				}).
				Mark(ierr.ErrDuplicateAccountNumber)
		}
		return ierr.WithError(err).
			WithHint("Failed to create client").
			WithReportableDetails(map[string]interface{}{
				"client_id": c.ID,
			}).
			Mark(ierr.ErrPersistence)
	}
	return nil
}

func (r *clientRepository) Get(ctx context.Context, id string) (*domainClient.Client, error) {
	key := cache.GenerateKey(cache.PrefixClient, id)
	if cached, ok := r.cache.Get(ctx, key); ok {
		if c, ok := cached.(*domainClient.Client); ok {
			return c, nil
		}
	}

	q := r.db.GetQuerier(ctx)

	var c domainClient.Client
	err := q.GetContext(ctx, &c, q.Rebind(`SELECT `+clientColumns+` FROM clients WHERE id = ?`), id)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ierr.WithError(err).
				WithHintf("Client %s was not found", id).
				WithReportableDetails(map[string]interface{}{
					"client_id": id,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to retrieve client").
			WithReportableDetails(map[string]interface{}{
				"client_id": id,
			}).
			Mark(ierr.ErrPersistence)
	}

	// clients are never mutated once registered
	r.cache.Set(ctx, key, &c, 0)
	return &c, nil
}

func (r *clientRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*domainClient.Client, error) {
	q := r.db.GetQuerier(ctx)

	var c domainClient.Client
	err := q.GetContext(ctx, &c, q.Rebind(`SELECT `+clientColumns+` FROM clients WHERE account_number = ?`), accountNumber)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ierr.WithError(err).
				WithHintf("No client has account number %s", accountNumber).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to retrieve client").
			Mark(ierr.ErrPersistence)
	}
	return &c, nil
}

func (r *clientRepository) where(filter *types.ClientFilter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	if filter != nil && strings.TrimSpace(filter.Search) != "" {
		term := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
		clauses = append(clauses, `(LOWER(account_number) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(middle_name) LIKE ?)`)
		args = append(args, term, term, term, term)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *clientRepository) List(ctx context.Context, filter *types.ClientFilter) ([]*domainClient.Client, error) {
	if filter == nil {
		filter = types.NewClientFilter()
	}
	q := r.db.GetQuerier(ctx)

	where, args := r.where(filter)
	query := `SELECT ` + clientColumns + ` FROM clients` + where +
		` ORDER BY created_at ` + orderDirection(filter) + `, id ` + orderDirection(filter)
	query = paginate(query, filter, q.DriverName())

	var clients []*domainClient.Client
	if err := q.SelectContext(ctx, &clients, q.Rebind(query), args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list clients").
			Mark(ierr.ErrPersistence)
	}
	return clients, nil
}

func (r *clientRepository) Count(ctx context.Context, filter *types.ClientFilter) (int, error) {
	q := r.db.GetQuerier(ctx)

	where, args := r.where(filter)
	var count int
	if err := q.GetContext(ctx, &count, q.Rebind(`SELECT COUNT(*) FROM clients`+where), args...); err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count clients").
			Mark(ierr.ErrPersistence)
	}
	return count, nil
}

func (r *clientRepository) FindLastIssuedAccountNumber(ctx context.Context) (string, error) {
	q := r.db.GetQuerier(ctx)

	var accountNumber string
	err := q.GetContext(ctx, &accountNumber, `SELECT account_number FROM clients ORDER BY created_at DESC, id DESC LIMIT 1`)
	if err != nil {
		if database.IsNoRows(err) {
			return "", nil
		}
		return "", ierr.WithError(err).
			WithHint("Failed to read the last issued account number").
			Mark(ierr.ErrPersistence)
	}
	return accountNumber, nil
}
