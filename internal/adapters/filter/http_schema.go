package filter

import (
	"encoding/json"
	"fmt"

	"github.com/mikey/phishguard/internal/core"
)

// urlRequest is the body of POST /analyze-url. A missing url is analyzed as
// empty input rather than rejected.
type urlRequest struct {
	URL string `json:"url"`
}

// emailRequest is the body of POST /analyze-email
type emailRequest struct {
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// legacyRequest is the body of the combined POST /analyze endpoint
type legacyRequest struct {
	Type  string          `json:"type" binding:"required,oneof=url email"`
	Value json.RawMessage `json:"value" binding:"required"`
}

// legacyResponse is the reduced verdict of POST /analyze
type legacyResponse struct {
	Status    core.Status `json:"status"`
	RiskScore float64     `json:"riskScore"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// toInput converts a legacy request into an AnalysisInput. For the email
// type a bare string value is taken as the body.
func (r legacyRequest) toInput() (core.AnalysisInput, error) {
	switch r.Type {
	case "url":
		var url string
		if err := json.Unmarshal(r.Value, &url); err != nil {
			return core.AnalysisInput{}, fmt.Errorf("%w: url value must be a string", core.ErrInvalidInput)
		}
		return core.NewURLInput(url), nil
	case "email":
		var email emailRequest
		if err := json.Unmarshal(r.Value, &email); err == nil {
			return core.NewEmailInput(email.Sender, email.Subject, email.Body), nil
		}
		var body string
		if err := json.Unmarshal(r.Value, &body); err != nil {
			return core.AnalysisInput{}, fmt.Errorf("%w: email value must be an object or a string", core.ErrInvalidInput)
		}
		return core.NewEmailInput("", "", body), nil
	default:
		return core.AnalysisInput{}, fmt.Errorf("%w: unsupported type %q", core.ErrInvalidInput, r.Type)
	}
}
