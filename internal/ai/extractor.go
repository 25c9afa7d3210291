// Package ai extracts structured bill fields from email text using AWS
// Bedrock (Claude). All inference stays within AWS - no external API calls.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/duetrack/billscan/internal/pkg/logger"
)

const (
	defaultModelID = "anthropic.claude-3-haiku-20240307-v1:0"

	// DefaultWorkers is the number of emails processed concurrently.
	DefaultWorkers = 5
	// MaxWorkers caps the pool size regardless of configuration.
	MaxWorkers = 10

	defaultItemTimeout = 30 * time.Second
	maxBodyChars       = 6000
)

// Invoker is the subset of the Bedrock runtime client used by the extractor.
type Invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Request is a single email handed to the model for field extraction.
type Request struct {
	EmailID string
	Sender  string
	Subject string
	Body    string
}

// Fields holds the structured values the model pulled out of an email.
type Fields struct {
	VendorName string  `json:"vendor_name"`
	Amount     float64 `json:"amount"`
	DueDate    string  `json:"due_date"`
	PaymentURL string  `json:"payment_url"`
	IsBill     bool    `json:"is_bill"`
	Confidence float64 `json:"confidence"`
}

// Result pairs extracted fields with the email they came from.
type Result struct {
	EmailID string
	Fields  Fields
}

// Config tunes the extractor's concurrency and request shape.
type Config struct {
	Workers     int
	ItemTimeout time.Duration
	MaxTokens   int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Workers > MaxWorkers {
		c.Workers = MaxWorkers
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = defaultItemTimeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	return c
}

// Extractor calls Bedrock to pull bill fields out of email text.
type Extractor struct {
	client  Invoker
	modelID string
	cfg     Config
}

// bedrockMessage is a message in the Anthropic messages format.
type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// New creates an Extractor backed by the default AWS config chain.
func New(modelID string, cfg Config) (*Extractor, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if modelID == "" {
		modelID = defaultModelID
	}

	logger.Info("ai extractor initialized", "model", modelID, "region", region)
	return &Extractor{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: modelID,
		cfg:     cfg.withDefaults(),
	}, nil
}

// NewWithClient creates an Extractor around an existing Bedrock client.
func NewWithClient(client Invoker, modelID string, cfg Config) *Extractor {
	if modelID == "" {
		modelID = defaultModelID
	}
	return &Extractor{client: client, modelID: modelID, cfg: cfg.withDefaults()}
}

const systemPrompt = `You extract billing information from emails. Given an email's sender, subject, and body, respond with ONLY a JSON object, no prose, in this exact shape:

{"is_bill": true, "vendor_name": "Comcast", "amount": 89.45, "due_date": "2026-03-15", "payment_url": "https://...", "confidence": 0.92}

Rules:
- is_bill is false for marketing, receipts for completed payments, and anything without an amount owed.
- amount is the amount due, as a number, no currency symbol. Use 0 if unknown.
- due_date is ISO format (YYYY-MM-DD). Use "" if unknown.
- payment_url must come from the email body. Use "" if none present.
- confidence is 0.0-1.0: how certain you are in the extracted values overall.`

// ExtractBatch runs field extraction over a set of emails with a bounded
// worker pool. Emails the model fails on are dropped from the output so one
// bad item never sinks its siblings.
func (e *Extractor) ExtractBatch(ctx context.Context, reqs []Request) []Result {
	if len(reqs) == 0 {
		return nil
	}

	work := make(chan Request, len(reqs))
	for _, r := range reqs {
		work <- r
	}
	close(work)

	resultsChan := make(chan Result, len(reqs))

	var wg sync.WaitGroup
	workers := e.cfg.Workers
	if workers > len(reqs) {
		workers = len(reqs)
	}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for req := range work {
				select {
				case <-ctx.Done():
					return
				default:
				}

				fields, err := e.extractOne(ctx, req)
				if err != nil {
					logger.Warn("ai extraction failed, dropping email",
						"email_id", req.EmailID, "error", err.Error())
					continue
				}
				resultsChan <- Result{EmailID: req.EmailID, Fields: fields}
			}
		}()
	}

	wg.Wait()
	close(resultsChan)

	results := make([]Result, 0, len(reqs))
	for r := range resultsChan {
		results = append(results, r)
	}
	return results
}

func (e *Extractor) extractOne(ctx context.Context, req Request) (Fields, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ItemTimeout)
	defer cancel()

	body := req.Body
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars]
	}

	userMessage := fmt.Sprintf("From: %s\nSubject: %s\n\n%s", req.Sender, req.Subject, body)

	request := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        e.cfg.MaxTokens,
		System:           systemPrompt,
		Messages: []bedrockMessage{
			{
				Role: "user",
				Content: []bedrockContentBlock{
					{Type: "text", Text: userMessage},
				},
			},
		},
		Temperature: 0,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return Fields{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return Fields{}, fmt.Errorf("bedrock invoke: %w", err)
	}

	var response bedrockResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return Fields{}, fmt.Errorf("failed to parse response: %w", err)
	}

	var text string
	for _, content := range response.Content {
		if content.Type == "text" {
			text += content.Text
		}
	}

	fields, err := parseFields(text)
	if err != nil {
		return Fields{}, err
	}
	return fields, nil
}

// parseFields pulls the JSON object out of the model's reply, tolerating
// markdown fences and surrounding prose.
func parseFields(text string) (Fields, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Fields{}, fmt.Errorf("no JSON object in model output")
	}

	var fields Fields
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return Fields{}, fmt.Errorf("failed to decode model output: %w", err)
	}

	if fields.Confidence < 0 {
		fields.Confidence = 0
	}
	if fields.Confidence > 1 {
		fields.Confidence = 1
	}
	fields.VendorName = strings.TrimSpace(fields.VendorName)
	fields.DueDate = strings.TrimSpace(fields.DueDate)
	fields.PaymentURL = strings.TrimSpace(fields.PaymentURL)
	return fields, nil
}
