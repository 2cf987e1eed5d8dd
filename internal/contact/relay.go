package contact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrInvalidSubmission reports a failed required-field check. It is
	// raised before the remote endpoint is ever contacted.
	ErrInvalidSubmission = errors.New("contact: invalid submission")

	errMissingEndpoint  = errors.New("contact: endpoint url required")
	errMissingAccessKey = errors.New("contact: access key required")

	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Submission carries the contact form fields.
type Submission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Result is the hosted form endpoint's answer.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// RelayConfig bundles the hosted form endpoint settings.
type RelayConfig struct {
	EndpointURL string
	AccessKey   string
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Relay forwards validated contact submissions to the hosted form endpoint.
type Relay struct {
	endpointURL string
	accessKey   string
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewRelay(cfg RelayConfig) (*Relay, error) {
	endpoint := strings.TrimSpace(cfg.EndpointURL)
	if endpoint == "" {
		return nil, errMissingEndpoint
	}
	accessKey := strings.TrimSpace(cfg.AccessKey)
	if accessKey == "" {
		return nil, errMissingAccessKey
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		endpointURL: endpoint,
		accessKey:   accessKey,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// Submit validates the fields and posts them with the access key.
func (r *Relay) Submit(ctx context.Context, submission Submission) (Result, error) {
	if err := validate(submission); err != nil {
		return Result{}, err
	}

	form := url.Values{}
	form.Set("access_key", r.accessKey)
	form.Set("name", strings.TrimSpace(submission.Name))
	form.Set("email", strings.TrimSpace(submission.Email))
	form.Set("subject", strings.TrimSpace(submission.Subject))
	form.Set("message", strings.TrimSpace(submission.Message))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpointURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	response, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Warn("contact relay request failed", zap.Error(err))
		return Result{}, fmt.Errorf("contact: submit: %w", err)
	}
	defer response.Body.Close()

	var result Result
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		r.logger.Warn("contact relay response decode failed", zap.Error(err))
		return Result{}, fmt.Errorf("contact: decode response: %w", err)
	}
	return result, nil
}

func validate(submission Submission) error {
	if strings.TrimSpace(submission.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSubmission)
	}
	email := strings.TrimSpace(submission.Email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidSubmission)
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: email is malformed", ErrInvalidSubmission)
	}
	if strings.TrimSpace(submission.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidSubmission)
	}
	if strings.TrimSpace(submission.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidSubmission)
	}
	return nil
}
