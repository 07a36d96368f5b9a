package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alimasry/go-review-tracker/oplog"
)

// DefaultCollection is the Firestore collection review documents live in.
const DefaultCollection = "reviews"

// FirestoreStore is a Firestore-backed implementation of DocumentStore.
// Each review is one document; its log is the "operations" subcollection
// keyed by zero-padded 0-based index.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a new FirestoreStore using the given Firestore
// client. An empty collection means DefaultCollection.
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &FirestoreStore{
		client:     client,
		collection: collection,
	}
}

// reviewRecord is the stored form of a review. Elements are kept as JSON so
// the element wire format is the single schema.
type reviewRecord struct {
	Source     string    `firestore:"source"`
	Elements   string    `firestore:"elements"`
	Operations int64     `firestore:"operations"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

type operationRecord struct {
	Index     int64  `firestore:"index"`
	Sequence  int64  `firestore:"sequence"`
	Kind      string `firestore:"kind"`
	ElementID string `firestore:"elementId"`
	Data      string `firestore:"data"`
}

func (s *FirestoreStore) docRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *FirestoreStore) opsCollection(docID string) *firestore.CollectionRef {
	return s.docRef(docID).Collection("operations")
}

func zeroPad(index int) string {
	return fmt.Sprintf("%010d", index)
}

func notFound(id string) error {
	return fmt.Errorf("document %q: %w", id, ErrNotFound)
}

func (s *FirestoreStore) Create(ctx context.Context, id, source string, elements []oplog.Element) error {
	elems, err := json.Marshal(elements)
	if err != nil {
		return fmt.Errorf("encode elements of %q: %w", id, err)
	}
	now := time.Now()
	_, err = s.docRef(id).Create(ctx, reviewRecord{
		Source:    source,
		Elements:  string(elems),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("document %q: %w", id, ErrExists)
	}
	return err
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*DocumentInfo, error) {
	snap, err := s.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	return snapshotToDocInfo(snap)
}

func snapshotToDocInfo(snap *firestore.DocumentSnapshot) (*DocumentInfo, error) {
	var rec reviewRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("decode review %s: %w", snap.Ref.ID, err)
	}
	var elems []oplog.Element
	if rec.Elements != "" {
		if err := json.Unmarshal([]byte(rec.Elements), &elems); err != nil {
			return nil, fmt.Errorf("decode elements of %s: %w", snap.Ref.ID, err)
		}
	}
	return &DocumentInfo{
		ID:         snap.Ref.ID,
		Source:     rec.Source,
		Elements:   elems,
		Operations: int(rec.Operations),
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}

func (s *FirestoreStore) List(ctx context.Context) ([]DocumentInfo, error) {
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	var result []DocumentInfo
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		info, err := snapshotToDocInfo(snap)
		if err != nil {
			return nil, err
		}
		result = append(result, *info)
	}
	return result, nil
}

// AppendOperation stores op at the next index. The index is read and bumped
// in one transaction so concurrent appends cannot share a slot.
func (s *FirestoreStore) AppendOperation(ctx context.Context, id string, op oplog.Operation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("encode operation %s: %w", op.ID, err)
	}
	ref := s.docRef(id)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return notFound(id)
		}
		if err != nil {
			return err
		}
		var rec reviewRecord
		if err := snap.DataTo(&rec); err != nil {
			return err
		}
		index := rec.Operations
		if err := tx.Set(s.opsCollection(id).Doc(zeroPad(int(index))), operationRecord{
			Index:     index,
			Sequence:  int64(op.Sequence),
			Kind:      string(op.Kind),
			ElementID: op.ElementID,
			Data:      string(data),
		}); err != nil {
			return err
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "operations", Value: index + 1},
			{Path: "updatedAt", Value: time.Now()},
		})
	})
}

func (s *FirestoreStore) GetOperations(ctx context.Context, id string, from int) ([]oplog.Operation, error) {
	// Verify document exists.
	_, err := s.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	if from < 0 {
		return nil, fmt.Errorf("invalid operation index %d", from)
	}

	iter := s.opsCollection(id).
		OrderBy(firestore.DocumentID, firestore.Asc).
		StartAt(zeroPad(from)).
		Documents(ctx)
	defer iter.Stop()

	var ops []oplog.Operation
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		op, err := snapshotToOperation(snap)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func snapshotToOperation(snap *firestore.DocumentSnapshot) (oplog.Operation, error) {
	var rec operationRecord
	if err := snap.DataTo(&rec); err != nil {
		return oplog.Operation{}, fmt.Errorf("decode operation %s: %w", snap.Ref.ID, err)
	}
	var op oplog.Operation
	if err := json.Unmarshal([]byte(rec.Data), &op); err != nil {
		return oplog.Operation{}, fmt.Errorf("decode operation %s: %w", snap.Ref.ID, err)
	}
	return op, nil
}

// TruncateOperations deletes every operation from index n on with a
// BulkWriter, then records the new length.
func (s *FirestoreStore) TruncateOperations(ctx context.Context, id string, n int) error {
	if n < 0 {
		return fmt.Errorf("invalid operation count %d", n)
	}
	info, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if n >= info.Operations {
		return nil
	}

	iter := s.opsCollection(id).
		OrderBy(firestore.DocumentID, firestore.Asc).
		StartAt(zeroPad(n)).
		Select().
		Documents(ctx)
	defer iter.Stop()

	bw := s.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return err
		}
		job, err := bw.Delete(snap.Ref)
		if err != nil {
			bw.End()
			return err
		}
		jobs = append(jobs, job)
	}
	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("truncate %q: %w", id, err)
		}
	}

	_, err = s.docRef(id).Update(ctx, []firestore.Update{
		{Path: "operations", Value: int64(n)},
		{Path: "updatedAt", Value: time.Now()},
	})
	if status.Code(err) == codes.NotFound {
		return notFound(id)
	}
	return err
}
