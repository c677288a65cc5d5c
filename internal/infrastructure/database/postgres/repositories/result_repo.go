package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

const (
	defaultMentionLimit = 50
	maxMentionLimit     = 1000
)

// Mention is one stored occurrence of an entity in a resolved document.
type Mention struct {
	DocumentID string        `json:"document_id"`
	Entity     entity.Entity `json:"entity"`
	ResolvedAt time.Time     `json:"resolved_at"`
}

// StoredResult is a persisted resolution result with its bookkeeping columns.
type StoredResult struct {
	entity.Result
	ResolvedAt time.Time `json:"resolved_at"`
}

// ResultRepository persists resolution results into the documents and
// document_entities tables.
type ResultRepository struct {
	db  *sql.DB
	log logging.Logger
	now func() time.Time
}

func NewResultRepository(conn *postgres.Connection, log logging.Logger) *ResultRepository {
	return NewResultRepositoryWithDB(conn.DB(), log)
}

func NewResultRepositoryWithDB(db *sql.DB, log logging.Logger) *ResultRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ResultRepository{db: db, log: log, now: time.Now}
}

// Name identifies the repository when used as a result sink.
func (r *ResultRepository) Name() string { return "postgres" }

// Write stores res, replacing any earlier result for the same document.
func (r *ResultRepository) Write(ctx context.Context, res *entity.Result) error {
	return r.Save(ctx, res)
}

// Save upserts the document row and rewrites its entity rows in one transaction.
func (r *ResultRepository) Save(ctx context.Context, res *entity.Result) error {
	if res == nil || res.DocumentID == "" {
		return errors.New(errors.ErrCodeValidation, "result requires a document id")
	}
	stats, err := jsonb(res.Stats)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode result stats")
	}
	resolvedAt := r.now().UTC()

	err = postgres.WithTransaction(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, text, sentences, tables_version, stats, entity_count, resolved_at)
			VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				text = EXCLUDED.text,
				sentences = EXCLUDED.sentences,
				tables_version = EXCLUDED.tables_version,
				stats = EXCLUDED.stats,
				entity_count = EXCLUDED.entity_count,
				resolved_at = EXCLUDED.resolved_at`,
			res.DocumentID, res.Text, res.Sentences, res.TablesVersion, stats, len(res.Entities), resolvedAt,
		); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert document")
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM document_entities WHERE document_id = $1`, res.DocumentID); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to clear document entities")
		}

		for i, e := range res.Entities {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO document_entities
					(document_id, ordinal, text, label, start_offset, end_offset, source, sentence_idx, normalized, date_iso)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				res.DocumentID, i, e.Text, e.Label, e.Start, e.End, string(e.Source), e.SentenceIdx, e.Normalized, e.DateISO,
			); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert document entity").
					WithDetail(e.String())
			}
		}
		return nil
	})
	if err != nil {
		r.log.Error("failed to save result", logging.Err(err), logging.DocumentID(res.DocumentID))
		return err
	}
	r.log.Debug("result saved",
		logging.DocumentID(res.DocumentID),
		logging.Int("entities", len(res.Entities)))
	return nil
}

// Get loads the stored result for id.
func (r *ResultRepository) Get(ctx context.Context, id string) (*StoredResult, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, text, sentences, tables_version, stats, resolved_at
		FROM documents WHERE id = $1`, id)

	out, err := scanDocument(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("document not found").WithDetail(id)
		}
		if errors.IsCode(err, errors.ErrCodeSerialization) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load document")
	}

	entities, err := r.loadEntities(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	out.Entities = entities
	return out, nil
}

func scanDocument(row scanner) (*StoredResult, error) {
	var (
		out   StoredResult
		stats []byte
	)
	if err := row.Scan(&out.DocumentID, &out.Text, &out.Sentences, &out.TablesVersion, &stats, &out.ResolvedAt); err != nil {
		return nil, err
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &out.Stats); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt stats column").WithDetail(out.DocumentID)
		}
	}
	return &out, nil
}

func (r *ResultRepository) loadEntities(ctx context.Context, q queryExecutor, id string) ([]entity.Entity, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT text, label, start_offset, end_offset, source, sentence_idx, normalized, date_iso
		FROM document_entities WHERE document_id = $1 ORDER BY ordinal`, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load document entities")
	}
	defer rows.Close()

	entities := make([]entity.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan document entity")
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "row iteration error")
	}
	return entities, nil
}

func scanEntity(row scanner, extra ...interface{}) (entity.Entity, error) {
	var (
		e      entity.Entity
		source string
	)
	dest := append([]interface{}{&e.Text, &e.Label, &e.Start, &e.End, &source, &e.SentenceIdx, &e.Normalized, &e.DateISO}, extra...)
	if err := row.Scan(dest...); err != nil {
		return entity.Entity{}, err
	}
	e.Source = entity.Source(source)
	return e, nil
}

// Delete removes a document and, through the foreign key, its entities.
func (r *ResultRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete document")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read affected rows")
	}
	if n == 0 {
		return errors.NotFound("document not found").WithDetail(id)
	}
	return nil
}

// FindMentions returns stored entities with the given label whose surface text
// matches text case-insensitively, newest documents first.
func (r *ResultRepository) FindMentions(ctx context.Context, label, text string, limit int) ([]Mention, error) {
	if label == "" || text == "" {
		return nil, errors.InvalidParam("label and text are required")
	}
	limit = clampLimit(limit, defaultMentionLimit, maxMentionLimit)

	rows, err := r.db.QueryContext(ctx, `
		SELECT e.text, e.label, e.start_offset, e.end_offset, e.source, e.sentence_idx, e.normalized, e.date_iso,
		       e.document_id, d.resolved_at
		FROM document_entities e
		JOIN documents d ON d.id = e.document_id
		WHERE e.label = $1 AND lower(e.text) = lower($2)
		ORDER BY d.resolved_at DESC, e.document_id, e.ordinal
		LIMIT $3`, label, text, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query mentions")
	}
	defer rows.Close()

	var out []Mention
	for rows.Next() {
		var m Mention
		e, err := scanEntity(rows, &m.DocumentID, &m.ResolvedAt)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan mention")
		}
		m.Entity = e
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "row iteration error")
	}
	return out, nil
}

// LabelCounts returns the number of stored entities per label.
func (r *ResultRepository) LabelCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT label, COUNT(*) FROM document_entities GROUP BY label`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count labels")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan label count")
		}
		counts[label] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "row iteration error")
	}
	return counts, nil
}

//Personal.AI order the ending
