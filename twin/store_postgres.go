package twin

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq" // for the postgres database

	"github.com/meshworks/twin-registry/core/csql"
)

// PostgresStore is the postgres implementation of the twin record store.
type PostgresStore struct {
	db *csql.DB
}

// MustNewPostgresStore creates the store. It creates the sql relation for
// twin records (if it does not exist yet).
func MustNewPostgresStore(db *csql.DB) *PostgresStore {
	if db == nil {
		panic("DB is missing")
	}

	// poor man's database migrations
	_, err := db.Exec(`CREATE table IF NOT EXISTS ` + db.Schema + `.twin
(twin_id varchar NOT NULL,
owner_id varchar NOT NULL,
spec_url varchar NOT NULL,
capabilities varchar NOT NULL DEFAULT '',
event_mesh_url varchar NOT NULL DEFAULT '',
last_telemetry_at timestamp,
created_at timestamp NOT NULL DEFAULT now(),
PRIMARY KEY(twin_id)
);
CREATE index IF NOT EXISTS twin_owner_index ON ` + db.Schema + `.twin(owner_id);`)

	if err != nil {
		panic(err)
	}

	return &PostgresStore{db: db}
}

const twinColumns = `twin_id,owner_id,spec_url,capabilities,event_mesh_url,last_telemetry_at,created_at`

func scanTwin(row interface{ Scan(...interface{}) error }) (Twin, error) {
	var (
		t            Twin
		capabilities string
		telemetry    sql.NullTime
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.SpecURL, &capabilities, &t.EventMeshURL, &telemetry, &t.CreatedAt)
	if err != nil {
		return Twin{}, err
	}
	t.Capabilities = splitCapabilities(capabilities)
	if telemetry.Valid {
		t.LastTelemetryAt = &telemetry.Time
	}
	return t, nil
}

// Create stores a new twin. The id must be set.
func (s *PostgresStore) Create(ctx context.Context, t Twin) (Twin, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO `+s.db.Schema+`.twin(twin_id,owner_id,spec_url,capabilities,event_mesh_url)
VALUES($1,$2,$3,$4,$5)
RETURNING `+twinColumns+`;`,
		t.ID, t.OwnerID, t.SpecURL, joinCapabilities(t.Capabilities), t.EventMeshURL)
	return scanTwin(row)
}

// ListByOwner returns all twins of the given owner, oldest first.
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]Twin, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+twinColumns+` FROM `+s.db.Schema+`.twin WHERE owner_id=$1 ORDER BY created_at,twin_id;`,
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	twins := []Twin{}
	for rows.Next() {
		t, err := scanTwin(rows)
		if err != nil {
			return nil, err
		}
		twins = append(twins, t)
	}
	return twins, rows.Err()
}

// GetByIDAndOwner returns the twin with the given id and owner.
func (s *PostgresStore) GetByIDAndOwner(ctx context.Context, id, ownerID string) (Twin, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+twinColumns+` FROM `+s.db.Schema+`.twin WHERE twin_id=$1 AND owner_id=$2;`,
		id, ownerID)
	t, err := scanTwin(row)
	if err == csql.ErrNoRows {
		return Twin{}, ErrNotFound
	}
	return t, err
}

// UpdateByIDAndOwner applies the update in one statement, with id and owner
// combined into the predicate. A nil update field keeps the stored value.
func (s *PostgresStore) UpdateByIDAndOwner(ctx context.Context, id, ownerID string, update Update) (Twin, error) {
	var specURL, capabilities sql.NullString
	if update.SpecURL != nil {
		specURL = sql.NullString{String: *update.SpecURL, Valid: true}
	}
	if update.Capabilities != nil {
		capabilities = sql.NullString{String: joinCapabilities(*update.Capabilities), Valid: true}
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE `+s.db.Schema+`.twin
SET spec_url=COALESCE($3,spec_url),capabilities=COALESCE($4,capabilities)
WHERE twin_id=$1 AND owner_id=$2
RETURNING `+twinColumns+`;`,
		id, ownerID, specURL, capabilities)
	t, err := scanTwin(row)
	if err == csql.ErrNoRows {
		return Twin{}, ErrNotFound
	}
	return t, err
}

// DeleteByIDAndOwner removes the twin with the given id and owner. Deletion
// is physical and immediate.
func (s *PostgresStore) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.db.Schema+`.twin WHERE twin_id=$1 AND owner_id=$2;`,
		id, ownerID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch stamps the twin's last telemetry time. An empty ownerID skips the
// owner scope for privileged service callers.
func (s *PostgresStore) Touch(ctx context.Context, id, ownerID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+s.db.Schema+`.twin SET last_telemetry_at=$3 WHERE twin_id=$1 AND ($2='' OR owner_id=$2);`,
		id, ownerID, at)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}
