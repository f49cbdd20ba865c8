package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
	"github.com/noah-isme/serenia-tutor-api/internal/repository"
)

type fakeRemoteStore struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]interface{}
	subs        map[string]map[string]map[string]interface{}
	nextID      int

	listErr   map[string]error
	subErr    error
	getErr    error
	upsertErr error
	createErr error

	listCalls map[string]int
	upserts   int
	// onList runs before a collection is listed, without the store lock held.
	onList func(name string)
}

func newFakeRemoteStore() *fakeRemoteStore {
	return &fakeRemoteStore{
		collections: make(map[string]map[string]map[string]interface{}),
		subs:        make(map[string]map[string]map[string]interface{}),
		listErr:     make(map[string]error),
		listCalls:   make(map[string]int),
	}
}

func (f *fakeRemoteStore) put(collection, id string, fields map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.collections[collection] == nil {
		f.collections[collection] = make(map[string]map[string]interface{})
	}
	f.collections[collection][id] = copyFields(fields)
}

func (f *fakeRemoteStore) putSub(parentCollection, parentID, sub, id string, fields map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := subKey(parentCollection, parentID, sub)
	if f.subs[key] == nil {
		f.subs[key] = make(map[string]map[string]interface{})
	}
	f.subs[key][id] = copyFields(fields)
}

func (f *fakeRemoteStore) fields(collection, id string) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyFields(f.collections[collection][id])
}

func (f *fakeRemoteStore) ListCollection(_ context.Context, name string) ([]models.Document, error) {
	if hook := f.hook(); hook != nil {
		hook(name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls[name]++
	if err := f.listErr[name]; err != nil {
		return nil, err
	}
	return sortedDocs(f.collections[name]), nil
}

func (f *fakeRemoteStore) ListSubcollection(_ context.Context, parentCollection, parentID, subName string) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	return sortedDocs(f.subs[subKey(parentCollection, parentID, subName)]), nil
}

func (f *fakeRemoteStore) UpsertFields(_ context.Context, collection, id string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	if f.collections[collection] == nil {
		f.collections[collection] = make(map[string]map[string]interface{})
	}
	doc := f.collections[collection][id]
	if doc == nil {
		doc = make(map[string]interface{})
		f.collections[collection][id] = doc
	}
	for k, v := range fields {
		if list, ok := v.([]string); ok {
			v = append([]string{}, list...)
		}
		doc[k] = v
	}
	return nil
}

func (f *fakeRemoteStore) QueryByField(_ context.Context, collection, field string, value interface{}) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[collection]; err != nil {
		return nil, err
	}
	var out []models.Document
	for _, doc := range sortedDocs(f.collections[collection]) {
		if v, ok := doc.Fields[field]; ok && v == value {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *fakeRemoteStore) GetDocument(_ context.Context, collection, id string) (models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return models.Document{}, f.getErr
	}
	fields, ok := f.collections[collection][id]
	if !ok {
		return models.Document{}, repository.ErrDocumentNotFound
	}
	return models.Document{ID: id, Fields: copyFields(fields)}, nil
}

func (f *fakeRemoteStore) CreateDocument(_ context.Context, collection string, fields map[string]interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("generated-%d", f.nextID)
	if f.collections[collection] == nil {
		f.collections[collection] = make(map[string]map[string]interface{})
	}
	f.collections[collection][id] = copyFields(fields)
	return id, nil
}

func (f *fakeRemoteStore) hook() func(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onList
}

func subKey(parentCollection, parentID, sub string) string {
	return parentCollection + "/" + parentID + "/" + sub
}

func sortedDocs(docs map[string]map[string]interface{}) []models.Document {
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]models.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Document{ID: id, Fields: copyFields(docs[id])})
	}
	return out
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if list, ok := v.([]string); ok {
			v = append([]string{}, list...)
		}
		out[k] = v
	}
	return out
}

func tutorDoc(name, email string, groups ...string) map[string]interface{} {
	return map[string]interface{}{
		fieldTutorFullName: name,
		fieldTutorEmail:    email,
		fieldTutorGroups:   append([]string{}, groups...),
	}
}

func studentDoc(name, group, gender string, age int) map[string]interface{} {
	return map[string]interface{}{
		fieldStudentName:   name,
		fieldStudentGroup:  group,
		fieldStudentGender: gender,
		fieldStudentAge:    age,
	}
}

func responseDoc(studentID, instrument string, level int, date string) map[string]interface{} {
	return map[string]interface{}{
		fieldResponseStudent:    studentID,
		fieldResponseInstrument: instrument,
		fieldResponseLevel:      level,
		fieldResponseDate:       date,
	}
}
