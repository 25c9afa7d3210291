package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInvoker answers InvokeModel calls from a canned-response table and
// tracks how many calls are in flight at once.
type fakeInvoker struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	calls       int

	respond func(prompt string) (string, error)
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.mu.Lock()
	f.inFlight++
	f.calls++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	var req bedrockRequest
	if err := json.Unmarshal(params.Body, &req); err != nil {
		return nil, err
	}
	var prompt string
	if len(req.Messages) > 0 && len(req.Messages[0].Content) > 0 {
		prompt = req.Messages[0].Content[0].Text
	}

	text, err := f.respond(prompt)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(bedrockResponse{
		Content: []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{
			{Type: "text", Text: text},
		},
	})
	if err != nil {
		return nil, err
	}
	return &bedrockruntime.InvokeModelOutput{Body: body}, nil
}

func billJSON(vendor string, amount float64) string {
	return fmt.Sprintf(`{"is_bill": true, "vendor_name": %q, "amount": %v, "due_date": "2026-03-15", "payment_url": "", "confidence": 0.9}`, vendor, amount)
}

func TestExtractBatchBoundedConcurrency(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeInvoker{
		respond: func(string) (string, error) {
			<-release
			return billJSON("Acme", 10), nil
		},
	}
	ex := NewWithClient(fake, "", Config{})

	reqs := make([]Request, 12)
	for i := range reqs {
		reqs[i] = Request{EmailID: fmt.Sprintf("email-%d", i), Body: "bill"}
	}

	go func() {
		// Let everything queued start, then unblock all calls.
		close(release)
	}()

	results := ex.ExtractBatch(context.Background(), reqs)

	require.Len(t, results, 12)
	assert.Equal(t, 12, fake.calls)
	assert.LessOrEqual(t, fake.maxInFlight, DefaultWorkers)
}

func TestExtractBatchDropsFailures(t *testing.T) {
	fake := &fakeInvoker{
		respond: func(prompt string) (string, error) {
			if prompt == "From: bad@example.com\nSubject: \n\nbill" {
				return "", fmt.Errorf("throttled")
			}
			return billJSON("Acme", 25.50), nil
		},
	}
	ex := NewWithClient(fake, "", Config{Workers: 3})

	reqs := []Request{
		{EmailID: "a", Sender: "ok@example.com", Body: "bill"},
		{EmailID: "b", Sender: "bad@example.com", Body: "bill"},
		{EmailID: "c", Sender: "ok@example.com", Body: "bill"},
	}

	results := ex.ExtractBatch(context.Background(), reqs)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, "b", r.EmailID)
		assert.Equal(t, "Acme", r.Fields.VendorName)
		assert.Equal(t, 25.50, r.Fields.Amount)
	}
}

func TestExtractBatchEmptyInput(t *testing.T) {
	fake := &fakeInvoker{respond: func(string) (string, error) {
		t.Fatal("should not be called")
		return "", nil
	}}
	ex := NewWithClient(fake, "", Config{})
	assert.Nil(t, ex.ExtractBatch(context.Background(), nil))
}

func TestConfigWorkerCap(t *testing.T) {
	assert.Equal(t, MaxWorkers, Config{Workers: 50}.withDefaults().Workers)
	assert.Equal(t, DefaultWorkers, Config{}.withDefaults().Workers)
	assert.Equal(t, 2, Config{Workers: 2}.withDefaults().Workers)
}

func TestParseFieldsMarkdownFence(t *testing.T) {
	text := "Here you go:\n```json\n" + billJSON("Verizon", 120) + "\n```"
	fields, err := parseFields(text)
	require.NoError(t, err)
	assert.Equal(t, "Verizon", fields.VendorName)
	assert.Equal(t, float64(120), fields.Amount)
	assert.True(t, fields.IsBill)
}

func TestParseFieldsGarbage(t *testing.T) {
	_, err := parseFields("I could not find a bill in this email.")
	assert.Error(t, err)
}

func TestParseFieldsClampsConfidence(t *testing.T) {
	fields, err := parseFields(`{"is_bill": true, "vendor_name": "X", "amount": 1, "confidence": 1.7}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, fields.Confidence)
}
