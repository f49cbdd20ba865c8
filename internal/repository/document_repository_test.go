package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestDocumentRepositoryListCollection(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("converts driver values", func(mt *mtest.T) {
		ns := mt.DB.Name() + ".respuestas_cuestionarios"
		submitted := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
		oid := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(1, ns, mtest.FirstBatch,
				bson.D{
					{Key: "_id", Value: oid},
					{Key: "id_user", Value: "s1"},
					{Key: "questionnaire", Value: "BAI"},
					{Key: "level", Value: int32(3)},
					{Key: "date", Value: primitive.NewDateTimeFromTime(submitted)},
				},
				bson.D{
					{Key: "_id", Value: "r2"},
					{Key: "id_user", Value: "s2"},
					{Key: "date", Value: "2024-03-01T10:00:00Z"},
				},
			),
			mtest.CreateCursorResponse(0, ns, mtest.NextBatch),
		)

		repo := NewDocumentRepository(mt.DB)
		docs, err := repo.ListCollection(context.Background(), "respuestas_cuestionarios")
		require.NoError(t, err)
		require.Len(t, docs, 2)

		assert.Equal(t, oid.Hex(), docs[0].ID)
		assert.Equal(t, submitted, docs[0].Fields["date"])
		assert.Equal(t, int32(3), docs[0].Fields["level"])
		_, hasID := docs[0].Fields["_id"]
		assert.False(t, hasID)

		assert.Equal(t, "r2", docs[1].ID)
		assert.Equal(t, "2024-03-01T10:00:00Z", docs[1].Fields["date"])
	})

	mt.Run("flattens arrays", func(mt *mtest.T) {
		ns := mt.DB.Name() + ".tutors"
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
				{Key: "_id", Value: "t1"},
				{Key: "full_name", Value: "Ana Ruiz"},
				{Key: "groups", Value: bson.A{"G1", "G2"}},
			}),
		)

		docs, err := NewDocumentRepository(mt.DB).ListCollection(context.Background(), "tutors")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, []interface{}{"G1", "G2"}, docs[0].Fields["groups"])
	})

	mt.Run("surfaces command errors", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 13, Message: "unauthorized"}))

		_, err := NewDocumentRepository(mt.DB).ListCollection(context.Background(), "tutors")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "list tutors")
	})
}

func TestDocumentRepositoryListSubcollection(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("strips parent id", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + SubcollectionName("users", "recomendaciones")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "rec1"},
			{Key: ParentIDField, Value: "s1"},
			{Key: "cuestionario", Value: "BDI"},
			{Key: "recomendacion", Value: "Hablar con orientación"},
		}))

		docs, err := NewDocumentRepository(mt.DB).ListSubcollection(context.Background(), "users", "s1", "recomendaciones")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "rec1", docs[0].ID)
		assert.Equal(t, "BDI", docs[0].Fields["cuestionario"])
		_, hasParent := docs[0].Fields[ParentIDField]
		assert.False(t, hasParent)
	})
}

func TestDocumentRepositoryGetDocument(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		ns := mt.DB.Name() + ".tutors"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "t1"},
			{Key: "groups", Value: bson.A{"G1"}},
		}))

		doc, err := NewDocumentRepository(mt.DB).GetDocument(context.Background(), "tutors", "t1")
		require.NoError(t, err)
		assert.Equal(t, "t1", doc.ID)
	})

	mt.Run("missing", func(mt *mtest.T) {
		ns := mt.DB.Name() + ".tutors"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := NewDocumentRepository(mt.DB).GetDocument(context.Background(), "tutors", "nope")
		assert.ErrorIs(t, err, ErrDocumentNotFound)
	})
}

func TestDocumentRepositoryWrites(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upsert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		err := NewDocumentRepository(mt.DB).UpsertFields(context.Background(), "tutors", "t1", map[string]interface{}{
			"groups": []string{"G1", "G2"},
		})
		require.NoError(t, err)
	})

	mt.Run("upsert without fields is a no-op", func(mt *mtest.T) {
		require.NoError(t, NewDocumentRepository(mt.DB).UpsertFields(context.Background(), "tutors", "t1", nil))
	})

	mt.Run("create", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		id, err := NewDocumentRepository(mt.DB).CreateDocument(context.Background(), "tutors", map[string]interface{}{
			"email":  "ana@example.com",
			"groups": []string{},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	})
}

func TestIDFilter(t *testing.T) {
	oid := primitive.NewObjectID()
	assert.Equal(t, bson.M{"_id": bson.M{"$in": bson.A{oid, oid.Hex()}}}, idFilter(oid.Hex()))
	assert.Equal(t, bson.M{"_id": "abc"}, idFilter("abc"))

	assert.Equal(t, oid, idValue(oid.Hex()))
	assert.Equal(t, "abc", idValue("abc"))
}

func TestDocumentRepositoryGetDocumentWithHexStringID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("string key that looks like an ObjectID", func(mt *mtest.T) {
		const id = "65f0c0ffee65f0c0ffee65f0"
		ns := mt.DB.Name() + ".users"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "name", Value: "Ana"},
		}))

		doc, err := NewDocumentRepository(mt.DB).GetDocument(context.Background(), "users", id)
		require.NoError(t, err)
		assert.Equal(t, id, doc.ID)

		started := mt.GetStartedEvent()
		require.NotNil(t, started)
		keys, err := started.Command.Lookup("filter", "_id", "$in").Array().Values()
		require.NoError(t, err)
		require.Len(t, keys, 2)
		assert.Equal(t, bson.TypeObjectID, keys[0].Type)
		assert.Equal(t, id, keys[1].StringValue())
	})
}
