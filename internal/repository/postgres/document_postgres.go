package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"pdflearn/internal/database"
	"pdflearn/internal/model"
	"pdflearn/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

// CreateWithResources inserts the document row and one row per resource inside one transaction.
func (r *DocumentPostgres) CreateWithResources(ctx context.Context, doc *model.SavedDocument, resources []model.SavedResource) (*model.SavedDocument, []model.SavedResource, error) {
	const qDoc = `
		INSERT INTO pdfs (id, owner_id, title, filename, storage_path)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, owner_id, title, filename, storage_path, created_at
	`
	const qRes = `
		INSERT INTO resources (document_id, owner_id, source_id, title, category, url, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	var (
		outDoc model.SavedDocument
		outRes = make([]model.SavedResource, 0, len(resources))
	)
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, qDoc,
			doc.ID,
			doc.OwnerID,
			doc.Title,
			doc.Filename,
			doc.StoragePath,
		).Scan(
			&outDoc.ID,
			&outDoc.OwnerID,
			&outDoc.Title,
			&outDoc.Filename,
			&outDoc.StoragePath,
			&outDoc.CreatedAt,
		)
		if err != nil {
			return translate(err)
		}

		for _, res := range resources {
			res.DocumentID = outDoc.ID
			res.OwnerID = outDoc.OwnerID
			if err := tx.QueryRowContext(ctx, qRes,
				res.DocumentID,
				res.OwnerID,
				res.SourceID,
				res.Title,
				string(res.Category),
				res.URL,
				res.Confidence,
			).Scan(&res.ID, &res.CreatedAt); err != nil {
				return fmt.Errorf("insert resource %q: %w", res.Title, err)
			}
			outRes = append(outRes, res)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	outDoc.ResourceCount = len(outRes)
	return &outDoc, outRes, nil
}

const selectDocuments = `
	SELECT p.id, p.owner_id, p.title, p.filename, p.storage_path, p.created_at, COUNT(r.id)
	FROM pdfs p
	LEFT JOIN resources r ON r.document_id = p.id
`

// ListByOwner returns all documents of the owner ordered newest first.
func (r *DocumentPostgres) ListByOwner(ctx context.Context, ownerID string) ([]model.SavedDocument, error) {
	const q = selectDocuments + `
	WHERE p.owner_id = $1
	GROUP BY p.id
	ORDER BY p.created_at DESC, p.id DESC
	`
	rows, err := r.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.SavedDocument, 0)
	for rows.Next() {
		var d model.SavedDocument
		if err := rows.Scan(
			&d.ID,
			&d.OwnerID,
			&d.Title,
			&d.Filename,
			&d.StoragePath,
			&d.CreatedAt,
			&d.ResourceCount,
		); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// FindByID fetches one document of the owner.
func (r *DocumentPostgres) FindByID(ctx context.Context, ownerID, id string) (*model.SavedDocument, error) {
	const q = selectDocuments + `
	WHERE p.owner_id = $1 AND p.id = $2
	GROUP BY p.id
	`
	var d model.SavedDocument
	err := r.db.QueryRowContext(ctx, q, ownerID, id).Scan(
		&d.ID,
		&d.OwnerID,
		&d.Title,
		&d.Filename,
		&d.StoragePath,
		&d.CreatedAt,
		&d.ResourceCount,
	)
	if err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

// ListResources returns the resources of one document, highest confidence first.
func (r *DocumentPostgres) ListResources(ctx context.Context, ownerID, documentID string) ([]model.SavedResource, error) {
	const q = `
		SELECT id, document_id, owner_id, source_id, title, category, url, confidence, created_at
		FROM resources
		WHERE owner_id = $1 AND document_id = $2
		ORDER BY confidence DESC, created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, q, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.SavedResource, 0)
	for rows.Next() {
		var (
			res      model.SavedResource
			category string
		)
		if err := rows.Scan(
			&res.ID,
			&res.DocumentID,
			&res.OwnerID,
			&res.SourceID,
			&res.Title,
			&category,
			&res.URL,
			&res.Confidence,
			&res.CreatedAt,
		); err != nil {
			return nil, err
		}
		res.Category = model.Category(category)
		items = append(items, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteResources removes the listed resources of one document and returns how many remain.
func (r *DocumentPostgres) DeleteResources(ctx context.Context, ownerID, documentID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return r.countResources(ctx, r.db, ownerID, documentID)
	}

	args := make([]any, 0, len(ids)+2)
	args = append(args, ownerID, documentID)
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", i+3)
	}
	q := `DELETE FROM resources WHERE owner_id = $1 AND document_id = $2 AND id IN (` +
		strings.Join(placeholders, ", ") + `)`

	var remaining int
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
		n, err := r.countResources(ctx, tx, ownerID, documentID)
		if err != nil {
			return err
		}
		remaining = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *DocumentPostgres) countResources(ctx context.Context, q queryRower, ownerID, documentID string) (int, error) {
	const qCount = `SELECT COUNT(*) FROM resources WHERE owner_id = $1 AND document_id = $2`
	var n int
	if err := q.QueryRowContext(ctx, qCount, ownerID, documentID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteDocument removes all resources of a document, then the document itself.
func (r *DocumentPostgres) DeleteDocument(ctx context.Context, ownerID, id string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM resources WHERE owner_id = $1 AND document_id = $2`, ownerID, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM pdfs WHERE owner_id = $1 AND id = $2`, ownerID, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}
