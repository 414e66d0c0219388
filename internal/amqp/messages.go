package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/report"
)

// ReportMessage carries a rendered-ready periodic report for the mail
// service. It is self-contained so consumers never call back into the API.
type ReportMessage struct {
	ID          string             `json:"id"`
	Owner       string             `json:"owner"`
	GeneratedAt time.Time          `json:"generatedAt"`
	Report      report.Report      `json:"report"`
	Totals      *core.Totals       `json:"totals,omitempty"`
	Recent      []core.Transaction `json:"recent"`
}

// NewReportMessage stamps r with a fresh ID and the current time.
func NewReportMessage(owner string, r report.Report, totals *core.Totals, recent []core.Transaction) *ReportMessage {
	if recent == nil {
		recent = []core.Transaction{}
	}
	return &ReportMessage{
		ID:          uuid.NewString(),
		Owner:       owner,
		GeneratedAt: time.Now().UTC(),
		Report:      r,
		Totals:      totals,
		Recent:      recent,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportMessageFromJSON decodes a message produced by ToJSON.
func ReportMessageFromJSON(data []byte) (*ReportMessage, error) {
	var msg ReportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
