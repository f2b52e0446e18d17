package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/patientvault/internal/dbx"
	"github.com/dmitrijs2005/patientvault/internal/server/repositories/files"
	"github.com/dmitrijs2005/patientvault/internal/server/repositories/groups"
	"github.com/dmitrijs2005/patientvault/internal/server/repositories/patients"
	"github.com/dmitrijs2005/patientvault/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can use
// the same repository types inside and outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Patients(db dbx.DBTX) patients.Repository
	Groups(db dbx.DBTX) groups.Repository
	Files(db dbx.DBTX) files.Repository
}
