package api

import "time"

// transactionRequestBody is the wire shape of POST /transactions.
type transactionRequestBody struct {
	TransactionID string            `json:"transaction_id"`
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	MerchantID    string            `json:"merchant_id"`
	CardLastFour  string            `json:"card_last_four"`
	Metadata      map[string]string `json:"metadata"`
}

// transactionResponseBody is the wire shape of the POST /transactions
// response: fee and fee_rate are non-null only when approved,
// decline_reason and decline_type only when declined, and
// processor_used is null when no processor was invoked.
type transactionResponseBody struct {
	TransactionID   string   `json:"transaction_id"`
	Status          string   `json:"status"`
	ProcessorUsed   *string  `json:"processor_used"`
	Amount          string   `json:"amount"`
	Currency        string   `json:"currency"`
	Fee             *string  `json:"fee"`
	FeeRate         *float64 `json:"fee_rate"`
	DeclineReason   *string  `json:"decline_reason"`
	DeclineType     *string  `json:"decline_type"`
	Attempts        int      `json:"attempts"`
	ProcessorsTried []string `json:"processors_tried"`
	LatencyMS       float64  `json:"latency_ms"`
	ProcessedAt     time.Time `json:"processed_at"`
}

// statusReportBody is one entry of GET /processors/status.
type statusReportBody struct {
	Name                    string   `json:"name"`
	State                   string   `json:"state"`
	SuccessRate             float64  `json:"success_rate"`
	TotalCallsInWindow      int      `json:"total_calls_in_window"`
	SuccessfulCallsInWindow int      `json:"successful_calls_in_window"`
	FailedCallsInWindow     int      `json:"failed_calls_in_window"`
	LastFailureAt           *string  `json:"last_failure_at"`
	CooldownRemainingSeconds *float64 `json:"cooldown_remaining_seconds"`
	FeeRate                 float64  `json:"fee_rate"`
}

// resetResponseBody is the POST /processors/{name}/reset response.
type resetResponseBody struct {
	Processor string `json:"processor"`
	Action    string `json:"action"`
	State     string `json:"state"`
}

// injectResponseBody is the POST /processors/{name}/inject-failures
// response.
type injectResponseBody struct {
	Processor          string  `json:"processor"`
	InjectedFailures   int     `json:"injected_failures"`
	State              string  `json:"state"`
	SuccessRate        float64 `json:"success_rate"`
	TotalCallsInWindow int     `json:"total_calls_in_window"`
}

// statsResponseBody is the GET /stats response.
type statsResponseBody struct {
	TotalAttempts  int64                          `json:"total_attempts"`
	TotalSuccesses int64                          `json:"total_successes"`
	TotalFailures  int64                          `json:"total_failures"`
	Since          time.Time                      `json:"since"`
	ByProcessor    map[string]processorCountsBody `json:"by_processor"`
}

type processorCountsBody struct {
	Attempts    int64  `json:"attempts"`
	Successes   int64  `json:"successes"`
	Failures    int64  `json:"failures"`
	TotalFeeSum string `json:"total_fee_sum"`
}

type errorBody struct {
	Error string `json:"error"`
}
