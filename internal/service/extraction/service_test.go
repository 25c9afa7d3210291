package extraction_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/duetrack/billscan/internal/ai"
	"github.com/duetrack/billscan/internal/domain"
	"github.com/duetrack/billscan/internal/service/extraction"
)

// memRepo is an in-memory pipeline repository for unit testing.
type memRepo struct {
	mu          sync.Mutex
	emails      map[string]*domain.InboundEmail    // keyed by id
	extractions map[string]*domain.Extraction      // keyed by owner|email
	bills       map[string]*domain.Bill            // keyed by id
	ignored     map[string]bool                    // keyed by owner|message
	upserts     int
	billErr     error
}

func newMemRepo() *memRepo {
	return &memRepo{
		emails:      make(map[string]*domain.InboundEmail),
		extractions: make(map[string]*domain.Extraction),
		bills:       make(map[string]*domain.Bill),
		ignored:     make(map[string]bool),
	}
}

func (m *memRepo) addEmail(e domain.InboundEmail) {
	m.emails[e.ID] = &e
}

func (m *memRepo) addBill(b domain.Bill) {
	m.bills[b.ID] = &b
}

func (m *memRepo) GetEmail(_ context.Context, ownerID, emailID string) (*domain.InboundEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[emailID]
	if !ok || e.OwnerID != ownerID {
		return nil, extraction.ErrEmailNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memRepo) ListUnprocessedEmails(_ context.Context, ownerID string, limit int) ([]domain.InboundEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.InboundEmail
	for _, e := range m.emails {
		if e.OwnerID == ownerID && e.ProcessedAt == nil {
			out = append(out, *e)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memRepo) MarkEmailProcessed(_ context.Context, ownerID, emailID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[emailID]
	if !ok || e.OwnerID != ownerID {
		return extraction.ErrEmailNotFound
	}
	now := time.Now()
	e.ProcessedAt = &now
	return nil
}

func (m *memRepo) GetExtractionByEmail(_ context.Context, ownerID, emailID string) (*domain.Extraction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	x, ok := m.extractions[ownerID+"|"+emailID]
	if !ok {
		return nil, extraction.ErrExtractionNotFound
	}
	cp := *x
	return &cp, nil
}

func (m *memRepo) UpsertExtraction(_ context.Context, x *domain.Extraction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	key := x.OwnerID + "|" + x.EmailID
	if existing, ok := m.extractions[key]; ok {
		x.ID = existing.ID
	}
	cp := *x
	m.extractions[key] = &cp
	return cp.ID, nil
}

func (m *memRepo) BillExistsByMessageID(_ context.Context, ownerID, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bills {
		if b.OwnerID == ownerID && b.SourceMessageID == messageID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) ListUnpaidBills(_ context.Context, ownerID string) ([]domain.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Bill
	for _, b := range m.bills {
		if b.OwnerID == ownerID && !b.Paid {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memRepo) CreateBill(_ context.Context, b *domain.Bill) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.billErr != nil {
		return "", m.billErr
	}
	for _, existing := range m.bills {
		if existing.OwnerID == b.OwnerID && b.SourceMessageID != "" && existing.SourceMessageID == b.SourceMessageID {
			return "", domain.ErrDuplicateBill
		}
	}
	cp := *b
	m.bills[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memRepo) IgnoredSuggestionExists(_ context.Context, ownerID, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ignored[ownerID+"|"+messageID], nil
}

// fakeAI answers ExtractBatch from a canned table keyed by email id.
type fakeAI struct {
	fields map[string]ai.Fields
}

func (f *fakeAI) ExtractBatch(_ context.Context, reqs []ai.Request) []ai.Result {
	var out []ai.Result
	for _, r := range reqs {
		if fields, ok := f.fields[r.EmailID]; ok {
			out = append(out, ai.Result{EmailID: r.EmailID, Fields: fields})
		}
	}
	return out
}

const testOwner = "owner-1"

func billEmail(id, messageID string) domain.InboundEmail {
	return domain.InboundEmail{
		ID:         id,
		OwnerID:    testOwner,
		MessageID:  messageID,
		Sender:     "Comcast <billing@comcast.com>",
		Subject:    "Your Comcast bill is ready",
		PlainBody:  "Your Comcast bill is ready. $89.45 due 03/15/2026. Log in to view your statement.",
		ReceivedAt: time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC),
	}
}

func promoEmail(id string) domain.InboundEmail {
	return domain.InboundEmail{
		ID:        id,
		OwnerID:   testOwner,
		Sender:    "Deals <offers@shop.example.com>",
		Subject:   "50% OFF Spring Sale",
		PlainBody: "Everything must go! 50% OFF storewide. Shop now. Click here to unsubscribe.",
	}
}

func TestProcessEmailHeuristicOnly(t *testing.T) {
	repo := newMemRepo()
	repo.addEmail(billEmail("e1", "msg-1"))
	svc := extraction.NewService(repo, nil, extraction.Config{})

	res, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{})
	if err != nil {
		t.Fatalf("ProcessEmail: %v", err)
	}

	x := res.Extraction
	if x.Status != domain.ExtractionPending {
		t.Fatalf("status = %s, want pending", x.Status)
	}
	if x.Amount != 89.45 {
		t.Errorf("amount = %v, want 89.45", x.Amount)
	}
	if x.DueDate == nil || !x.DueDate.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("due date = %v, want 2026-03-15", x.DueDate)
	}
	if x.Name != "Comcast" {
		t.Errorf("name = %q, want Comcast", x.Name)
	}
	if x.Confidence <= 0.7 {
		t.Errorf("confidence = %v, want > 0.7", x.Confidence)
	}

	if !repo.emails["e1"].Processed() {
		t.Error("email not marked processed")
	}
}

func TestProcessEmailAnchorsDatesToReceivedTime(t *testing.T) {
	repo := newMemRepo()
	email := billEmail("e1", "msg-1")
	// A due date years beyond the email's arrival is noise, no matter when
	// the email is eventually processed.
	email.PlainBody = "Your Comcast bill is ready. $89.45 due 03/15/2031."
	repo.addEmail(email)
	svc := extraction.NewService(repo, nil, extraction.Config{})

	res, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{})
	if err != nil {
		t.Fatalf("ProcessEmail: %v", err)
	}
	if res.Extraction.DueDate != nil {
		t.Errorf("due date = %v, want none for an implausible year", res.Extraction.DueDate)
	}
}

func TestProcessEmailUnknownEmail(t *testing.T) {
	svc := extraction.NewService(newMemRepo(), nil, extraction.Config{})
	_, err := svc.ProcessEmail(context.Background(), testOwner, "nope", extraction.Options{})
	if err != extraction.ErrEmailNotFound {
		t.Fatalf("err = %v, want ErrEmailNotFound", err)
	}
}

func TestProcessEmailIdempotentShortCircuit(t *testing.T) {
	repo := newMemRepo()
	repo.addEmail(billEmail("e1", "msg-1"))
	svc := extraction.NewService(repo, nil, extraction.Config{})

	first, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{})
	if err != nil {
		t.Fatalf("first ProcessEmail: %v", err)
	}
	second, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{})
	if err != nil {
		t.Fatalf("second ProcessEmail: %v", err)
	}

	if !second.AlreadyProcessed {
		t.Error("second call should short-circuit")
	}
	if second.Extraction.ID != first.Extraction.ID {
		t.Error("short-circuit returned a different extraction")
	}
	if repo.upserts != 1 {
		t.Errorf("upserts = %d, want 1", repo.upserts)
	}
}

func TestProcessEmailForceReprocessOverwrites(t *testing.T) {
	repo := newMemRepo()
	repo.addEmail(billEmail("e1", "msg-1"))
	svc := extraction.NewService(repo, nil, extraction.Config{})

	first, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{})
	if err != nil {
		t.Fatalf("first ProcessEmail: %v", err)
	}
	second, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{ForceReprocess: true})
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}

	if second.AlreadyProcessed {
		t.Error("forced reprocess should not short-circuit")
	}
	if len(repo.extractions) != 1 {
		t.Fatalf("extractions = %d, want 1 (upsert, not insert)", len(repo.extractions))
	}
	if second.Extraction.ID != first.Extraction.ID {
		t.Error("reprocess should keep the same extraction id")
	}
}

func TestProcessEmailPromotionalRejected(t *testing.T) {
	repo := newMemRepo()
	repo.addEmail(promoEmail("e1"))
	svc := extraction.NewService(repo, nil, extraction.Config{})

	res, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{})
	if err != nil {
		t.Fatalf("ProcessEmail: %v", err)
	}

	if res.Extraction.Status != domain.ExtractionRejected {
		t.Fatalf("status = %s, want rejected", res.Extraction.Status)
	}
	if res.Extraction.DuplicateReason != domain.SkipPromotional {
		t.Errorf("reason = %q, want %q", res.Extraction.DuplicateReason, domain.SkipPromotional)
	}
	if !repo.emails["e1"].Processed() {
		t.Error("skipped email must still be marked processed")
	}
}

func TestProcessEmailAIMerge(t *testing.T) {
	repo := newMemRepo()
	repo.addEmail(billEmail("e1", "msg-1"))
	brain := &fakeAI{fields: map[string]ai.Fields{
		"e1": {
			IsBill:     true,
			VendorName: "Comcast Xfinity",
			Amount:     91.12,
			DueDate:    "2026-03-16",
			Confidence: 0.95,
		},
	}}
	svc := extraction.NewService(repo, brain, extraction.Config{})

	res, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{})
	if err != nil {
		t.Fatalf("ProcessEmail: %v", err)
	}

	x := res.Extraction
	if x.Amount != 91.12 {
		t.Errorf("amount = %v, want AI value 91.12", x.Amount)
	}
	if x.Name != "Comcast Xfinity" {
		t.Errorf("name = %q, want AI value", x.Name)
	}
	if x.DueDate == nil || !x.DueDate.Equal(time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("due date = %v, want AI value 2026-03-16", x.DueDate)
	}
	if x.Confidence != 0.95 {
		t.Errorf("confidence = %v, want AI confidence 0.95", x.Confidence)
	}
}

func TestProcessEmailAIFailureDegrades(t *testing.T) {
	repo := newMemRepo()
	repo.addEmail(billEmail("e1", "msg-1"))
	// AI returns nothing for this email, as after a dropped failure.
	svc := extraction.NewService(repo, &fakeAI{fields: map[string]ai.Fields{}}, extraction.Config{})

	res, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{})
	if err != nil {
		t.Fatalf("ProcessEmail: %v", err)
	}
	if res.Extraction.Status != domain.ExtractionPending {
		t.Fatalf("status = %s, want pending from heuristic fallback", res.Extraction.Status)
	}
	if res.Extraction.Amount != 89.45 {
		t.Errorf("amount = %v, want heuristic 89.45", res.Extraction.Amount)
	}
}

func TestProcessEmailSkipAI(t *testing.T) {
	repo := newMemRepo()
	repo.addEmail(billEmail("e1", "msg-1"))
	brain := &fakeAI{fields: map[string]ai.Fields{
		"e1": {IsBill: true, Amount: 500, Confidence: 0.99},
	}}
	svc := extraction.NewService(repo, brain, extraction.Config{})

	res, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{SkipAI: true})
	if err != nil {
		t.Fatalf("ProcessEmail: %v", err)
	}
	if res.Extraction.Amount != 89.45 {
		t.Errorf("amount = %v, SkipAI must ignore AI output", res.Extraction.Amount)
	}
}

func TestProcessEmailExactDuplicate(t *testing.T) {
	repo := newMemRepo()
	repo.addEmail(billEmail("e1", "msg-1"))
	repo.addBill(domain.Bill{
		ID: "b1", OwnerID: testOwner, Name: "Comcast",
		Amount: 89.45, SourceMessageID: "msg-1",
	})
	svc := extraction.NewService(repo, nil, extraction.Config{})

	res, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{})
	if err != nil {
		t.Fatalf("ProcessEmail: %v", err)
	}

	x := res.Extraction
	if x.Status != domain.ExtractionDuplicate {
		t.Fatalf("status = %s, want duplicate", x.Status)
	}
	if x.DuplicateReason != domain.DuplicateExactMessageID {
		t.Errorf("reason = %q, want %q", x.DuplicateReason, domain.DuplicateExactMessageID)
	}
	if len(repo.bills) != 1 {
		t.Errorf("bills = %d, duplicate must not create a second bill", len(repo.bills))
	}
}

func TestProcessEmailFuzzyDuplicate(t *testing.T) {
	due := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	repo := newMemRepo()
	repo.addEmail(billEmail("e1", "msg-new"))
	repo.addBill(domain.Bill{
		ID: "b1", OwnerID: testOwner, Name: "comcast",
		Amount: 89.99, DueDate: &due, SourceMessageID: "msg-old",
	})
	svc := extraction.NewService(repo, nil, extraction.Config{})

	res, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{})
	if err != nil {
		t.Fatalf("ProcessEmail: %v", err)
	}

	x := res.Extraction
	if x.Status != domain.ExtractionDuplicate {
		t.Fatalf("status = %s, want duplicate", x.Status)
	}
	if x.DuplicateReason != domain.DuplicateFuzzyMatch {
		t.Errorf("reason = %q, want %q", x.DuplicateReason, domain.DuplicateFuzzyMatch)
	}
}

func TestProcessEmailFuzzyIgnoresPaidBills(t *testing.T) {
	due := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	repo := newMemRepo()
	repo.addEmail(billEmail("e1", "msg-new"))
	repo.addBill(domain.Bill{
		ID: "b1", OwnerID: testOwner, Name: "Comcast",
		Amount: 89.45, DueDate: &due, Paid: true, SourceMessageID: "msg-old",
	})
	svc := extraction.NewService(repo, nil, extraction.Config{})

	res, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{})
	if err != nil {
		t.Fatalf("ProcessEmail: %v", err)
	}
	if res.Extraction.Status != domain.ExtractionPending {
		t.Fatalf("status = %s, paid bills must not fuzzy-match", res.Extraction.Status)
	}
}

func TestProcessEmailIgnoredSuggestion(t *testing.T) {
	repo := newMemRepo()
	repo.addEmail(billEmail("e1", "msg-1"))
	repo.ignored[testOwner+"|msg-1"] = true
	svc := extraction.NewService(repo, nil, extraction.Config{})

	res, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{})
	if err != nil {
		t.Fatalf("ProcessEmail: %v", err)
	}

	x := res.Extraction
	if x.Status != domain.ExtractionRejected {
		t.Fatalf("status = %s, want rejected", x.Status)
	}
	if x.DuplicateReason != domain.SkipIgnoredSuggestion {
		t.Errorf("reason = %q, want %q", x.DuplicateReason, domain.SkipIgnoredSuggestion)
	}
}

func TestProcessEmailAutoAccept(t *testing.T) {
	repo := newMemRepo()
	repo.addEmail(billEmail("e1", "msg-1"))
	brain := &fakeAI{fields: map[string]ai.Fields{
		"e1": {IsBill: true, VendorName: "Comcast", Amount: 89.45, DueDate: "2026-03-15", Confidence: 0.97},
	}}
	svc := extraction.NewService(repo, brain, extraction.Config{AutoAcceptThreshold: 0.9})

	res, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{})
	if err != nil {
		t.Fatalf("ProcessEmail: %v", err)
	}

	if res.Extraction.Status != domain.ExtractionConfirmed {
		t.Fatalf("status = %s, want confirmed", res.Extraction.Status)
	}
	if res.Bill == nil {
		t.Fatal("auto-accept must return the created bill")
	}
	if res.Bill.SourceMessageID != "msg-1" {
		t.Errorf("bill message id = %q, want msg-1", res.Bill.SourceMessageID)
	}
	if len(repo.bills) != 1 {
		t.Errorf("bills = %d, want 1", len(repo.bills))
	}
}

func TestProcessEmailAutoAcceptDisabledByDefault(t *testing.T) {
	repo := newMemRepo()
	repo.addEmail(billEmail("e1", "msg-1"))
	brain := &fakeAI{fields: map[string]ai.Fields{
		"e1": {IsBill: true, VendorName: "Comcast", Amount: 89.45, Confidence: 0.99},
	}}
	svc := extraction.NewService(repo, brain, extraction.Config{})

	res, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{})
	if err != nil {
		t.Fatalf("ProcessEmail: %v", err)
	}
	if res.Extraction.Status != domain.ExtractionPending {
		t.Fatalf("status = %s, threshold 0 must disable auto-accept", res.Extraction.Status)
	}
	if len(repo.bills) != 0 {
		t.Errorf("bills = %d, want 0", len(repo.bills))
	}
}

func TestProcessEmailAutoAcceptLosesRace(t *testing.T) {
	repo := newMemRepo()
	repo.addEmail(billEmail("e1", "msg-1"))
	repo.billErr = domain.ErrDuplicateBill
	brain := &fakeAI{fields: map[string]ai.Fields{
		"e1": {IsBill: true, VendorName: "Comcast", Amount: 89.45, Confidence: 0.97},
	}}
	svc := extraction.NewService(repo, brain, extraction.Config{AutoAcceptThreshold: 0.9})

	res, err := svc.ProcessEmail(context.Background(), testOwner, "e1", extraction.Options{})
	if err != nil {
		t.Fatalf("losing the insert race must not error: %v", err)
	}
	if res.Extraction.Status != domain.ExtractionDuplicate {
		t.Fatalf("status = %s, want duplicate after lost race", res.Extraction.Status)
	}
	if res.Bill != nil {
		t.Error("no bill should be returned after a lost race")
	}
}

func TestScanEmails(t *testing.T) {
	repo := newMemRepo()
	repo.addEmail(billEmail("e1", "msg-1"))
	repo.addEmail(promoEmail("e2"))
	processed := billEmail("e3", "msg-3")
	now := time.Now()
	processed.ProcessedAt = &now
	repo.addEmail(processed)
	svc := extraction.NewService(repo, nil, extraction.Config{})

	summary, err := svc.ScanEmails(context.Background(), testOwner, extraction.Options{})
	if err != nil {
		t.Fatalf("ScanEmails: %v", err)
	}

	if summary.Scanned != 2 {
		t.Errorf("scanned = %d, want 2 (processed email excluded)", summary.Scanned)
	}
	if summary.Pending != 1 {
		t.Errorf("pending = %d, want 1", summary.Pending)
	}
	if summary.Rejected != 1 {
		t.Errorf("rejected = %d, want 1", summary.Rejected)
	}
	if summary.Failed != 0 {
		t.Errorf("failed = %d, want 0", summary.Failed)
	}
}

func TestScanEmailsRespectsLimit(t *testing.T) {
	repo := newMemRepo()
	for i := 0; i < 15; i++ {
		repo.addEmail(billEmail(fmt.Sprintf("e%d", i), fmt.Sprintf("msg-%d", i)))
	}
	svc := extraction.NewService(repo, nil, extraction.Config{})

	summary, err := svc.ScanEmails(context.Background(), testOwner, extraction.Options{})
	if err != nil {
		t.Fatalf("ScanEmails: %v", err)
	}
	if summary.Scanned > 10 {
		t.Errorf("scanned = %d, batch cap is 10", summary.Scanned)
	}
}
