package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
)

// ErrDocumentNotFound is returned when a document id does not exist.
var ErrDocumentNotFound = errors.New("document not found")

// ParentIDField links a subcollection document to its parent.
const ParentIDField = "parent_id"

// DocumentRepository exposes MongoDB as a collection/document store.
// A subcollection "users/{id}/recomendaciones" lives in the collection
// "users.recomendaciones" and is filtered by ParentIDField.
type DocumentRepository struct {
	db *mongo.Database
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *mongo.Database) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// SubcollectionName returns the backing collection of a subcollection.
func SubcollectionName(parentCollection, subName string) string {
	return parentCollection + "." + subName
}

// ListCollection returns every document in the collection.
func (r *DocumentRepository) ListCollection(ctx context.Context, name string) ([]models.Document, error) {
	docs, err := r.find(ctx, name, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}
	return docs, nil
}

// ListSubcollection returns the children of parentID in subName.
func (r *DocumentRepository) ListSubcollection(ctx context.Context, parentCollection, parentID, subName string) ([]models.Document, error) {
	coll := SubcollectionName(parentCollection, subName)
	docs, err := r.find(ctx, coll, bson.M{ParentIDField: parentID})
	if err != nil {
		return nil, fmt.Errorf("list %s of %s: %w", coll, parentID, err)
	}
	for i := range docs {
		delete(docs[i].Fields, ParentIDField)
	}
	return docs, nil
}

// QueryByField returns documents whose field equals value.
func (r *DocumentRepository) QueryByField(ctx context.Context, collection, field string, value interface{}) ([]models.Document, error) {
	docs, err := r.find(ctx, collection, bson.M{field: value})
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", collection, field, err)
	}
	return docs, nil
}

// GetDocument loads a single document by id.
func (r *DocumentRepository) GetDocument(ctx context.Context, collection, id string) (models.Document, error) {
	var raw bson.M
	err := r.db.Collection(collection).FindOne(ctx, idFilter(id)).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Document{}, ErrDocumentNotFound
		}
		return models.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return toDocument(raw), nil
}

// UpsertFields sets the given fields on the document, creating it when missing.
// Fields not named are left untouched.
func (r *DocumentRepository) UpsertFields(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	_, err := r.db.Collection(collection).UpdateOne(ctx,
		idFilter(id),
		bson.M{"$set": bson.M(fields), "$setOnInsert": bson.M{"_id": idValue(id)}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

// CreateDocument inserts a new document with a generated id and returns the id.
func (r *DocumentRepository) CreateDocument(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	id := uuid.NewString()
	doc := bson.M{"_id": id}
	for k, v := range fields {
		if k == "_id" {
			continue
		}
		doc[k] = v
	}
	if _, err := r.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	return id, nil
}

func (r *DocumentRepository) find(ctx context.Context, collection string, filter bson.M) ([]models.Document, error) {
	cur, err := r.db.Collection(collection).Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, err
	}
	docs := make([]models.Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, toDocument(m))
	}
	return docs, nil
}

// idFilter matches a string key. A 24-char hex id also matches the ObjectID
// with the same hex, since either form may be stored.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}
	return bson.M{"_id": id}
}

// idValue is the key stored for id when a write creates the document.
func idValue(id string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func toDocument(raw bson.M) models.Document {
	doc := models.Document{Fields: make(map[string]interface{}, len(raw))}
	for k, v := range raw {
		if k == "_id" {
			doc.ID = idString(v)
			continue
		}
		doc.Fields[k] = plainValue(v)
	}
	return doc
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	default:
		return fmt.Sprint(id)
	}
}

// plainValue strips driver types so callers only see Go builtins and time.Time.
func plainValue(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC()
	case primitive.ObjectID:
		return val.Hex()
	case primitive.A:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = plainValue(item)
		}
		return out
	case bson.M:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = plainValue(item)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(val))
		for _, e := range val {
			out[e.Key] = plainValue(e.Value)
		}
		return out
	default:
		return v
	}
}
