package service

import (
	"context"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
)

// RemoteStore is the document store the snapshot is loaded from and group
// mutations are written to. Each call succeeds or fails as a unit.
type RemoteStore interface {
	ListCollection(ctx context.Context, name string) ([]models.Document, error)
	ListSubcollection(ctx context.Context, parentCollection, parentID, subName string) ([]models.Document, error)
	UpsertFields(ctx context.Context, collection, id string, fields map[string]interface{}) error
	QueryByField(ctx context.Context, collection, field string, value interface{}) ([]models.Document, error)
	GetDocument(ctx context.Context, collection, id string) (models.Document, error)
	CreateDocument(ctx context.Context, collection string, fields map[string]interface{}) (string, error)
}

// SnapshotCollections names the remote collections backing the snapshot.
type SnapshotCollections struct {
	Tutors          string
	Students        string
	Responses       string
	Recommendations string
}

func (c SnapshotCollections) withDefaults() SnapshotCollections {
	if c.Tutors == "" {
		c.Tutors = "tutors"
	}
	if c.Students == "" {
		c.Students = "users"
	}
	if c.Responses == "" {
		c.Responses = "respuestas_cuestionarios"
	}
	if c.Recommendations == "" {
		c.Recommendations = "recomendaciones"
	}
	return c
}
