// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package stevedore

import (
	"database/sql"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/sapcc/go-bits/easypg"

	"github.com/stevedore-registry/stevedore/internal/models"
)

var sqlMigrations = map[string]string{
	"001_initial.up.sql": `
		CREATE TABLE repos (
			id   BIGSERIAL NOT NULL PRIMARY KEY,
			name TEXT      NOT NULL UNIQUE
		);

		CREATE TABLE blobs (
			id                BIGSERIAL   NOT NULL PRIMARY KEY,
			digest            TEXT        NOT NULL UNIQUE,
			size_bytes        BIGINT      NOT NULL,
			media_type        TEXT        NOT NULL,
			pushed_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			can_be_deleted_at TIMESTAMPTZ DEFAULT NULL
		);

		CREATE TABLE blob_mounts (
			blob_id BIGINT NOT NULL REFERENCES blobs ON DELETE CASCADE,
			repo_id BIGINT NOT NULL REFERENCES repos ON DELETE CASCADE,
			UNIQUE (blob_id, repo_id)
		);

		CREATE TABLE uploads (
			repo_id    BIGINT      NOT NULL REFERENCES repos ON DELETE CASCADE,
			uuid       TEXT        NOT NULL,
			size_bytes BIGINT      NOT NULL,
			num_chunks INT         NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (repo_id, uuid)
		);

		CREATE TABLE manifests (
			repo_id    BIGINT      NOT NULL REFERENCES repos ON DELETE CASCADE,
			digest     TEXT        NOT NULL,
			media_type TEXT        NOT NULL,
			size_bytes BIGINT      NOT NULL,
			pushed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (repo_id, digest)
		);

		CREATE TABLE manifest_contents (
			repo_id BIGINT NOT NULL,
			digest  TEXT   NOT NULL,
			content BYTEA  NOT NULL,
			FOREIGN KEY (repo_id, digest) REFERENCES manifests ON DELETE CASCADE,
			UNIQUE (repo_id, digest)
		);

		CREATE TABLE tags (
			repo_id   BIGINT      NOT NULL REFERENCES repos ON DELETE CASCADE,
			name      TEXT        NOT NULL,
			digest    TEXT        NOT NULL,
			pushed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (repo_id, name),
			FOREIGN KEY (repo_id, digest) REFERENCES manifests ON DELETE CASCADE
		);
	`,
	"001_initial.down.sql": `
		DROP TABLE tags;
		DROP TABLE manifest_contents;
		DROP TABLE manifests;
		DROP TABLE uploads;
		DROP TABLE blob_mounts;
		DROP TABLE blobs;
		DROP TABLE repos;
	`,
}

// DB adds convenience functions on top of gorp.DbMap.
type DB struct {
	gorp.DbMap
}

// DBConfiguration returns the easypg.Configuration object that func main() needs to initialize the DB connection.
func DBConfiguration() easypg.Configuration {
	return easypg.Configuration{
		Migrations: sqlMigrations,
	}
}

// InitORM wraps a database connection into a DB instance.
func InitORM(dbConn *sql.DB) *DB {
	result := &DB{DbMap: gorp.DbMap{Db: dbConn, Dialect: gorp.PostgresDialect{}}}
	initModels(&result.DbMap)
	return result
}

func initModels(db *gorp.DbMap) {
	db.AddTableWithName(models.Repository{}, "repos").SetKeys(true, "id")
	db.AddTableWithName(models.Blob{}, "blobs").SetKeys(true, "id")
	db.AddTableWithName(models.Upload{}, "uploads").SetKeys(false, "repo_id", "uuid")
	db.AddTableWithName(models.Manifest{}, "manifests").SetKeys(false, "repo_id", "digest")
	db.AddTableWithName(models.ManifestContent{}, "manifest_contents").SetKeys(false, "repo_id", "digest")
	db.AddTableWithName(models.Tag{}, "tags").SetKeys(false, "repo_id", "name")
}

// SelectBool is analogous to db.SelectInt() etc.
func (db *DB) SelectBool(query string, args ...any) (bool, error) {
	var result bool
	err := db.QueryRow(query, args...).Scan(&result)
	return result, err
}
