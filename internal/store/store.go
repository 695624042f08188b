// Package store provides the Postgres-backed collaborators the transport
// layer uses to assemble engine inputs: the unlabeled task pool and the
// annotator history signal. The engine itself never touches the database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/glyphml/suggestions/emb"
	"github.com/glyphml/suggestions/engine"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(1 * time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// TaskRepo reads the unlabeled task pool for active-learning selection.
type TaskRepo struct{ DB *sql.DB }

func NewTaskRepo(db *sql.DB) *TaskRepo { return &TaskRepo{DB: db} }

// Pool returns up to limit unlabeled tasks for a project, in creation
// order, with whatever selection signals each row carries. Embedding
// signatures use the same length-prefixed float32 blob format as the
// embedding cache; rows with a broken blob keep their uncertainty signal
// and just lose the feature vector.
func (r *TaskRepo) Pool(ctx context.Context, projectID string, limit int) ([]engine.TaskDescriptor, error) {
	const q = `
select id,
       model_uncertainty,
       embedding
from tasks
where project_id = $1 and status = 'unlabeled'
order by created_at, id
limit $2`
	rows, err := r.DB.QueryContext(ctx, q, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("query task pool: %w", err)
	}
	defer rows.Close()

	var pool []engine.TaskDescriptor
	for rows.Next() {
		var (
			id          string
			uncertainty sql.NullFloat64
			blob        []byte
		)
		if err := rows.Scan(&id, &uncertainty, &blob); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		task := engine.TaskDescriptor{ID: id}
		if uncertainty.Valid {
			task.Uncertainty = uncertainty.Float64
			task.HasUncertainty = true
		}
		if len(blob) > 0 {
			if vec, err := emb.DecodeVector(blob); err == nil {
				task.Features = vec
			}
		}
		pool = append(pool, task)
	}
	return pool, rows.Err()
}

// AnnotatorRepo reads the historical quality signal for an annotator.
type AnnotatorRepo struct{ DB *sql.DB }

func NewAnnotatorRepo(db *sql.DB) *AnnotatorRepo { return &AnnotatorRepo{DB: db} }

// Signal aggregates the annotator's past quality scores. An annotator with
// no history yields a zero-valued signal, not an error.
func (r *AnnotatorRepo) Signal(ctx context.Context, userID string) (engine.ActorSignal, error) {
	const q = `
select coalesce(avg(quality_score), 0), count(*)
from annotation_scores
where user_id = $1`
	var signal engine.ActorSignal
	row := r.DB.QueryRowContext(ctx, q, userID)
	if err := row.Scan(&signal.MeanQuality, &signal.SampleCount); err != nil {
		return engine.ActorSignal{}, fmt.Errorf("query annotator signal: %w", err)
	}
	return signal, nil
}
