package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
)

func testFirestoreClient(t *testing.T) *firestore.Client {
	t.Helper()
	projectID := os.Getenv("FIRESTORE_PROJECT")
	if projectID == "" {
		t.Skip("FIRESTORE_PROJECT not set, skipping Firestore tests")
	}
	client, err := firestore.NewClient(context.Background(), projectID)
	if err != nil {
		t.Fatalf("failed to create Firestore client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func testFirestoreStore(t *testing.T) *FirestoreStore {
	t.Helper()
	return NewFirestoreStore(testFirestoreClient(t), os.Getenv("FIRESTORE_COLLECTION"))
}

// uniqueDocID returns a unique document ID for test isolation.
func uniqueDocID(t *testing.T) string {
	return fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano())
}

// cleanupDoc deletes a document and its operations subcollection.
func cleanupDoc(t *testing.T, s *FirestoreStore, docID string) {
	t.Helper()
	ctx := context.Background()

	// Delete operations subcollection.
	ops := s.opsCollection(docID).Documents(ctx)
	for {
		snap, err := ops.Next()
		if err != nil {
			break
		}
		snap.Ref.Delete(ctx)
	}

	// Delete document.
	s.docRef(docID).Delete(ctx)
}

func TestFirestoreStore_CreateAndGet(t *testing.T) {
	s := testFirestoreStore(t)
	ctx := context.Background()
	docID := uniqueDocID(t)
	t.Cleanup(func() { cleanupDoc(t, s, docID) })

	if err := s.Create(ctx, docID, "Hello.\n\nWorld.", testElements()); err != nil {
		t.Fatal(err)
	}

	info, err := s.Get(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Source != "Hello.\n\nWorld." || info.Operations != 0 || info.ID != docID {
		t.Errorf("unexpected info: %+v", info)
	}
	if len(info.Elements) != 2 || info.Elements[0].Metadata.Kind != "paragraph" {
		t.Errorf("elements = %+v", info.Elements)
	}
}

func TestFirestoreStore_CreateDuplicate(t *testing.T) {
	s := testFirestoreStore(t)
	ctx := context.Background()
	docID := uniqueDocID(t)
	t.Cleanup(func() { cleanupDoc(t, s, docID) })

	s.Create(ctx, docID, "", nil)
	if err := s.Create(ctx, docID, "", nil); !errors.Is(err, ErrExists) {
		t.Errorf("err = %v, want ErrExists", err)
	}
}

func TestFirestoreStore_GetNotFound(t *testing.T) {
	s := testFirestoreStore(t)
	_, err := s.Get(context.Background(), "nonexistent-doc-xyz")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFirestoreStore_List(t *testing.T) {
	s := testFirestoreStore(t)
	ctx := context.Background()

	ids := make([]string, 3)
	for i := range ids {
		ids[i] = uniqueDocID(t) + fmt.Sprintf("-%d", i)
		t.Cleanup(func() { cleanupDoc(t, s, ids[i]) })
		s.Create(ctx, ids[i], "", nil)
	}

	docs, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// At least our 3 docs should be present (there may be others from parallel tests).
	found := 0
	for _, d := range docs {
		for _, id := range ids {
			if d.ID == id {
				found++
			}
		}
	}
	if found != 3 {
		t.Errorf("found %d of our 3 docs in list", found)
	}
}

func TestFirestoreStore_Operations(t *testing.T) {
	s := testFirestoreStore(t)
	ctx := context.Background()
	docID := uniqueDocID(t)
	t.Cleanup(func() { cleanupDoc(t, s, docID) })

	s.Create(ctx, docID, "Hello.", testElements())

	for i := 1; i <= 2; i++ {
		if err := s.AppendOperation(ctx, docID, testOp(i)); err != nil {
			t.Fatal(err)
		}
	}

	// Get all ops.
	ops, err := s.GetOperations(ctx, docID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 2 {
		t.Fatalf("got %d ops, want 2", len(ops))
	}
	if ops[0].Edit == nil || ops[0].Edit.NewContent != "Hello 1." {
		t.Errorf("op payload lost: %+v", ops[0])
	}

	// Skip the first op.
	ops, err = s.GetOperations(ctx, docID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0].ID != "op2" {
		t.Fatalf("got %+v, want op2 only", ops)
	}
}

func TestFirestoreStore_TruncateOperations(t *testing.T) {
	s := testFirestoreStore(t)
	ctx := context.Background()
	docID := uniqueDocID(t)
	t.Cleanup(func() { cleanupDoc(t, s, docID) })

	s.Create(ctx, docID, "Hello.", testElements())
	for i := 1; i <= 3; i++ {
		if err := s.AppendOperation(ctx, docID, testOp(i)); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.TruncateOperations(ctx, docID, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendOperation(ctx, docID, testOp(4)); err != nil {
		t.Fatal(err)
	}
	assertOpIDs(t, s, docID, "op1", "op4")

	info, _ := s.Get(ctx, docID)
	if info.Operations != 2 {
		t.Errorf("Operations = %d, want 2", info.Operations)
	}
}

func TestFirestoreStore_OperationsNotFound(t *testing.T) {
	s := testFirestoreStore(t)
	_, err := s.GetOperations(context.Background(), "nonexistent-doc-xyz", 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
