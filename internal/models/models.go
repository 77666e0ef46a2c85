package models

import (
	"strings"
	"time"
)

// ProductRequest is one configured purchase target. Names are synonym
// spellings of the same item, most preferred first.
type ProductRequest struct {
	Names    []string `json:"names"`
	Quantity int      `json:"quantity"`
}

// Account holds one storefront credential pair. The password is never
// written to logs or artifacts.
type Account struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// MaskedUsername returns a log-safe form of the username, keeping just
// enough of it to tell accounts apart.
func (a Account) MaskedUsername() string {
	name := a.Username
	domain := ""
	if at := strings.IndexByte(name, '@'); at >= 0 {
		domain = name[at:]
		name = name[:at]
	}
	if len(name) <= 2 {
		return name + "***" + domain
	}
	return name[:2] + "***" + domain
}

// AccountStatus classifies how one account fared over a full run.
type AccountStatus string

const (
	StatusSuccess      AccountStatus = "success"
	StatusOutOfStock   AccountStatus = "out_of_stock"
	StatusLimitReached AccountStatus = "limit_reached"
	StatusError        AccountStatus = "error"
)

// AccountResult is the per-account record appended exactly once per run.
type AccountResult struct {
	Index          int           `json:"index"`
	MaskedUsername string        `json:"masked_username"`
	Status         AccountStatus `json:"status"`
	Message        string        `json:"message"`
	Timestamp      time.Time     `json:"timestamp"`
}

// FailureRecord is the structured artifact captured at every escalation
// point, so post-mortem diagnosis never depends on reproducing the
// failure live.
type FailureRecord struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	AccountIndex int       `json:"account_index"`
	Step         string    `json:"step"`
	URL          string    `json:"url"`
	Error        string    `json:"error"`
}

// ProductOutcomeRecord is the status-endpoint view of one finished
// product attempt.
type ProductOutcomeRecord struct {
	AccountIndex int       `json:"account_index"`
	Product      string    `json:"product"`
	Outcome      string    `json:"outcome"`
	Message      string    `json:"message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// RunSnapshot is the live view of a run served by the status endpoint.
type RunSnapshot struct {
	RunID          string                 `json:"run_id"`
	StartedAt      time.Time              `json:"started_at"`
	CurrentAccount int                    `json:"current_account"`
	Outcomes       []ProductOutcomeRecord `json:"outcomes"`
	Results        []AccountResult        `json:"results"`
	Done           bool                   `json:"done"`
}
