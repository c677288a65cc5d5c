package postgres

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationsDir = "migrations"

// MigrationState is the schema version recorded in schema_migrations.
type MigrationState struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	Latest  uint `json:"latest"`
}

// Pending reports whether embedded migrations are ahead of the database.
func (s MigrationState) Pending() bool { return s.Version < s.Latest }

// Migrator applies the embedded schema migrations.
type Migrator struct {
	db     *sql.DB
	logger logging.Logger
}

func NewMigrator(db *sql.DB, log logging.Logger) *Migrator {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Migrator{db: db, logger: log}
}

func newSource() (source.Driver, error) {
	return iofs.New(migrationFS, migrationsDir)
}

func (m *Migrator) instance() (*migrate.Migrate, error) {
	src, err := newSource()
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeInternal, "failed to open embedded migrations")
	}
	driver, err := migratepgx.WithInstance(m.db, &migratepgx.Config{})
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeDatabaseError, "failed to create migration driver")
	}
	mg, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeDatabaseError, "failed to create migrate instance")
	}
	return mg, nil
}

// Up applies all pending migrations.  Having nothing to apply is not an error.
func (m *Migrator) Up() error {
	mg, err := m.instance()
	if err != nil {
		return err
	}
	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		version, _, _ := mg.Version()
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeDatabaseError,
			fmt.Sprintf("failed to run migrations (current version: %d)", version))
	}
	version, dirty, err := mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		m.logger.Warn("Failed to get migration version", logging.Err(err))
	}
	m.logger.Info("Database migrations completed",
		logging.Int64("version", int64(version)),
		logging.Bool("dirty", dirty))
	return nil
}

// Down rolls back steps migrations.
func (m *Migrator) Down(steps int) error {
	if steps <= 0 {
		return pkgerrors.Newf(pkgerrors.ErrCodeValidation, "steps must be greater than 0, got %d", steps)
	}
	mg, err := m.instance()
	if err != nil {
		return err
	}
	if err := mg.Steps(-steps); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeDatabaseError, fmt.Sprintf("failed to roll back %d step(s)", steps))
	}
	return nil
}

// Status returns the applied and the latest embedded versions.
func (m *Migrator) Status() (MigrationState, error) {
	latest, err := LatestVersion()
	if err != nil {
		return MigrationState{}, err
	}
	mg, err := m.instance()
	if err != nil {
		return MigrationState{}, err
	}
	version, dirty, err := mg.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return MigrationState{Latest: latest}, nil
		}
		return MigrationState{}, pkgerrors.Wrap(err, pkgerrors.ErrCodeDatabaseError, "failed to get migration version")
	}
	return MigrationState{Version: version, Dirty: dirty, Latest: latest}, nil
}

// Force sets the recorded version without running migrations; used to clear
// a dirty state after a manual fix.
func (m *Migrator) Force(version int) error {
	mg, err := m.instance()
	if err != nil {
		return err
	}
	if err := mg.Force(version); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeDatabaseError, fmt.Sprintf("failed to force version %d", version))
	}
	return nil
}

// Versions lists the embedded migration versions in ascending order.
func Versions() ([]uint, error) {
	src, err := newSource()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	out := []uint{v}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, next)
		v = next
	}
}

// LatestVersion returns the highest embedded migration version.
func LatestVersion() (uint, error) {
	vs, err := Versions()
	if err != nil {
		return 0, err
	}
	if len(vs) == 0 {
		return 0, nil
	}
	return vs[len(vs)-1], nil
}

//Personal.AI order the ending
