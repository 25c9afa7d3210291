package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/duetrack/billscan/internal/domain"
	"github.com/duetrack/billscan/internal/service/extraction"
	"github.com/duetrack/billscan/internal/service/review"
)

func setupTestDB(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return NewStore(db), mock, func() { db.Close() }
}

func TestGetEmailNotFound(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM inbound_emails").
		WithArgs("e1", "owner-1").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetEmail(context.Background(), "owner-1", "e1")
	if !errors.Is(err, extraction.ErrEmailNotFound) {
		t.Fatalf("err = %v, want ErrEmailNotFound", err)
	}
}

func TestMarkEmailProcessed(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE inbound_emails SET processed_at").
		WithArgs("e1", "owner-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.MarkEmailProcessed(context.Background(), "owner-1", "e1"); err != nil {
		t.Fatalf("MarkEmailProcessed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMarkEmailProcessedMissing(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE inbound_emails SET processed_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkEmailProcessed(context.Background(), "owner-1", "missing")
	if !errors.Is(err, extraction.ErrEmailNotFound) {
		t.Fatalf("err = %v, want ErrEmailNotFound", err)
	}
}

func TestUpsertExtraction(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO extractions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("x-1"))

	id, err := store.UpsertExtraction(context.Background(), &domain.Extraction{
		OwnerID: "owner-1",
		EmailID: "e1",
		Status:  domain.ExtractionPending,
		Name:    "Comcast",
		Amount:  89.45,
	})
	if err != nil {
		t.Fatalf("UpsertExtraction: %v", err)
	}
	if id != "x-1" {
		t.Errorf("id = %q, want x-1 (id kept across overwrites)", id)
	}
}

func TestListPendingOrdersByConfidence(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	cols := []string{
		"id", "owner_id", "email_id", "status", "name", "amount", "due_date",
		"confidence", "payment_url", "payment_confidence", "candidate_links",
		"category", "recurring", "recurring_interval",
		"duplicate", "duplicate_reason", "created_at",
	}
	now := time.Now()
	mock.ExpectQuery("FROM extractions(.+)ORDER BY confidence ASC").
		WithArgs("owner-1", string(domain.ExtractionPending), 50).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("x1", "owner-1", "e1", "pending", "Water Co", 30.0, nil,
				0.41, "", 0.0, pq.StringArray{}, "", false, "", false, "", now).
			AddRow("x2", "owner-1", "e2", "pending", "Comcast", 89.45, nil,
				0.86, "https://pay.example", 0.9, pq.StringArray{"https://pay.example"},
				"", false, "", false, "", now))

	out, err := store.ListPending(context.Background(), "owner-1", 50)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(out) != 2 || out[0].ID != "x1" || out[1].Confidence != 0.86 {
		t.Errorf("unexpected result: %+v", out)
	}
	if len(out[1].CandidateLinks) != 1 {
		t.Errorf("candidate links not scanned: %v", out[1].CandidateLinks)
	}
}

func TestUpdateExtractionStatusMissing(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE extractions SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateExtractionStatus(context.Background(), "owner-1", "missing", domain.ExtractionConfirmed)
	if !errors.Is(err, review.ErrNotFound) {
		t.Fatalf("err = %v, want review.ErrNotFound", err)
	}
}

func TestCreateBillUniqueViolation(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO bills").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := store.CreateBill(context.Background(), &domain.Bill{
		OwnerID:         "owner-1",
		Name:            "Comcast",
		Amount:          89.45,
		Source:          domain.BillSourceEmail,
		SourceMessageID: "msg-1",
	})
	if !errors.Is(err, domain.ErrDuplicateBill) {
		t.Fatalf("err = %v, want ErrDuplicateBill", err)
	}
}

func TestInsertNotificationCreated(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO notification_queue").
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := store.InsertNotification(context.Background(), &domain.NotificationQueueEntry{
		OwnerID:       "owner-1",
		BillID:        "b1",
		Channel:       domain.ChannelInApp,
		Status:        domain.NotificationSent,
		ScheduledDate: "2026-03-12",
	})
	if err != nil {
		t.Fatalf("InsertNotification: %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
}

func TestInsertNotificationConflictSkips(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// ON CONFLICT DO NOTHING reports zero rows affected.
	mock.ExpectExec("INSERT INTO notification_queue").
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := store.InsertNotification(context.Background(), &domain.NotificationQueueEntry{
		OwnerID:       "owner-1",
		BillID:        "b1",
		Channel:       domain.ChannelInApp,
		ScheduledDate: "2026-03-12",
	})
	if err != nil {
		t.Fatalf("InsertNotification: %v", err)
	}
	if created {
		t.Error("created = true, want false on conflict")
	}
}

func TestRecordIgnoredSuggestionIdempotent(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO ignored_suggestions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.RecordIgnoredSuggestion(context.Background(), &domain.IgnoredSuggestion{
		OwnerID:   "owner-1",
		MessageID: "msg-1",
		IgnoredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("repeat record must not error: %v", err)
	}
}
