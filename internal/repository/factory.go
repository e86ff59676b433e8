package repository

import (
	"github.com/watercoop/waterbill/internal/cache"
	"github.com/watercoop/waterbill/internal/database"
	"github.com/watercoop/waterbill/internal/domain/bill"
	"github.com/watercoop/waterbill/internal/domain/client"
	"github.com/watercoop/waterbill/internal/domain/connection"
	"github.com/watercoop/waterbill/internal/logger"
	"github.com/watercoop/waterbill/internal/repository/sqlrepo"
)

func NewClientRepository(db *database.DB, logger *logger.Logger, cache cache.Cache) client.Repository {
	return sqlrepo.NewClientRepository(db, logger, cache)
}

func NewBillRepository(db *database.DB, logger *logger.Logger) bill.Repository {
	return sqlrepo.NewBillRepository(db, logger)
}

func NewPartialPaymentRepository(db *database.DB, logger *logger.Logger) bill.PartialPaymentRepository {
	return sqlrepo.NewPartialPaymentRepository(db, logger)
}

func NewConnectionStatusRepository(db *database.DB, logger *logger.Logger) connection.Repository {
	return sqlrepo.NewConnectionStatusRepository(db, logger)
}
