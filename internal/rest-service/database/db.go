package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqliteGo "github.com/mattn/go-sqlite3"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const CustomDriverName = "sqlite3_extended"

const DefaultFile = "rest-service.db"

// sqlite dsn options: wait on locks instead of failing, and take the write
// lock when a transaction begins so concurrent writers queue up.
const sqliteOptions = "?_busy_timeout=10000&_txlock=immediate"

var (
	ErrRecordNotFound = gorm.ErrRecordNotFound
	ErrDuplicate      = errors.New("duplicate record")
)

func init() {
	sql.Register(CustomDriverName,
		&sqliteGo.SQLiteDriver{
			ConnectHook: func(conn *sqliteGo.SQLiteConn) error {
				err := conn.RegisterFunc(
					"gen_random_uuid",
					func(arguments ...interface{}) (string, error) {
						u, err := uuid.NewRandom()
						if err != nil {
							return "", err
						}
						return u.String(), nil
					},
					true,
				)
				return err
			},
		},
	)
}

// NewDb opens (and migrates) a sqlite database file.
func NewDb(file string) (*gorm.DB, error) {
	dsn := file + sqliteOptions
	conn, err := sql.Open(CustomDriverName, dsn)
	if err != nil {
		return nil, err
	}

	return open(sqlite.Dialector{
		DriverName: CustomDriverName,
		DSN:        dsn,
		Conn:       conn,
	})
}

// NewPostgresDb opens (and migrates) a postgres database.
func NewPostgresDb(dsn string) (*gorm.DB, error) {
	return open(postgres.Open(dsn))
}

func open(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction:                   true,
		DisableNestedTransaction:                 true,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}
	if err = migrate(db); err != nil {
		return nil, fmt.Errorf("can't migrate database: %w", err)
	}
	return db, nil
}

func migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{},
		&Category{},
		&Tag{},
		&Folder{},
		&File{},
		&FileVersion{},
		&FileSharing{},
		&Reminder{},
	)
	if err != nil {
		return err
	}
	// at most one current version per file
	return db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_file_versions_current ON file_versions (file_id) WHERE is_current",
	).Error
}

// translateError turns uniqueness violations into ErrDuplicate.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	var sqliteErr sqliteGo.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqliteGo.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqliteGo.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	return err
}
