package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// InitDBOptions controls the optional bootstrap steps the init-db CLI
// subcommand may perform before running migrations.
type InitDBOptions struct {
	CreateUser     bool
	CreateDatabase bool
	DropExisting   bool
}

// sanitizeIdentifier rejects identifiers carrying a null byte and escapes
// embedded double quotes, mirroring db.rs's identifier sanitation before it
// is interpolated into a CREATE USER/DATABASE statement.
func sanitizeIdentifier(id string) (string, error) {
	if strings.ContainsRune(id, 0) {
		return "", fmt.Errorf("identifier contains a null byte")
	}
	return strings.ReplaceAll(id, `"`, `""`), nil
}

const duplicateObjectCode = "42710"
const duplicateDatabaseCode = "42P04"

func isDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if ok := asPgError(err, &pgErr); ok {
		return pgErr.Code == duplicateObjectCode
	}
	return false
}

func isDuplicateDatabase(err error) bool {
	var pgErr *pgconn.PgError
	if ok := asPgError(err, &pgErr); ok {
		return pgErr.Code == duplicateDatabaseCode
	}
	return false
}

func asPgError(err error, target **pgconn.PgError) bool {
	for err != nil {
		if e, ok := err.(*pgconn.PgError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

var schemaTables = []string{
	"chats", "duplicates", "animations", "animation_filenames",
	"matchups", "submissions", "suggested_duplicates", "tournaments", "users",
	"schema_migrations",
}

var schemaEnums = []string{"chat_type", "matchup_state", "tournament_state"}

// InitDB connects using bootstrapCfg (typically the dev.init_db section,
// which targets a maintenance database/role), optionally creates the
// target role and database, optionally drops every tournament-engine table
// and enum (and the migration bookkeeping table) in the target database
// described by runtimeCfg, and, when creating the role, grants it access to
// the existing tables. It does not run migrations; the schema is created by
// the migrations New applies when the run command starts.
func InitDB(ctx context.Context, bootstrapCfg Config, runtimeCfg Config, opts InitDBOptions) error {
	bootstrapConn, err := pgx.Connect(ctx, dsn(bootstrapCfg))
	if err != nil {
		return fmt.Errorf("connecting to bootstrap database: %w", err)
	}
	defer bootstrapConn.Close(ctx)

	if opts.CreateUser {
		user, err := sanitizeIdentifier(runtimeCfg.User)
		if err != nil {
			return fmt.Errorf("sanitizing db.user: %w", err)
		}
		password := strings.ReplaceAll(runtimeCfg.Password, "'", "''")
		stmt := fmt.Sprintf(`CREATE USER "%s" PASSWORD '%s'`, user, password)
		if _, err := bootstrapConn.Exec(ctx, stmt); err != nil && !isDuplicateObject(err) {
			return fmt.Errorf("creating user: %w", err)
		}
	}

	if opts.CreateDatabase {
		dbName, err := sanitizeIdentifier(runtimeCfg.Name)
		if err != nil {
			return fmt.Errorf("sanitizing db.dbname: %w", err)
		}
		owner, err := sanitizeIdentifier(runtimeCfg.User)
		if err != nil {
			return fmt.Errorf("sanitizing db.user: %w", err)
		}
		stmt := fmt.Sprintf(`CREATE DATABASE "%s" WITH OWNER "%s"`, dbName, owner)
		if _, err := bootstrapConn.Exec(ctx, stmt); err != nil && !isDuplicateDatabase(err) {
			return fmt.Errorf("creating database: %w", err)
		}
	}

	targetConn, err := pgx.Connect(ctx, dsn(runtimeCfg))
	if err != nil {
		return fmt.Errorf("connecting to target database: %w", err)
	}
	defer targetConn.Close(ctx)

	if opts.DropExisting {
		for _, table := range schemaTables {
			stmt := fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, table)
			if _, err := targetConn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("dropping table %s: %w", table, err)
			}
		}
		for _, enum := range schemaEnums {
			stmt := fmt.Sprintf(`DROP TYPE IF EXISTS %s CASCADE`, enum)
			if _, err := targetConn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("dropping type %s: %w", enum, err)
			}
		}
	}

	if opts.CreateUser {
		user, err := sanitizeIdentifier(runtimeCfg.User)
		if err != nil {
			return fmt.Errorf("sanitizing db.user: %w", err)
		}
		stmt := fmt.Sprintf(`GRANT ALL ON ALL TABLES IN SCHEMA "public" TO "%s"`, user)
		if _, err := targetConn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("granting privileges: %w", err)
		}
	}

	return nil
}
