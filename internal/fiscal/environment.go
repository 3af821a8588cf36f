package fiscal

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"
)

// EnvironmentConfig is everything needed to talk to one fiscal authority endpoint.
// It is passed explicitly to every submission.
type EnvironmentConfig struct {
	Name            string
	BaseURL         string
	POSID           int64
	USIN            string
	Token           string
	TaxRate         decimal.Decimal
	InvoiceType     int
	Discount        decimal.Decimal
	DefaultPCTCode  string
	DefaultItemCode string
	Timeout         time.Duration
	MaxAttempts     int
	BackoffBase     time.Duration
}

func (e EnvironmentConfig) Validate() error {
	if e.BaseURL == "" {
		return errors.New("fiscal environment: base url is empty")
	}
	if e.USIN == "" {
		return errors.New("fiscal environment: usin is empty")
	}
	return nil
}

func (e EnvironmentConfig) attempts() int {
	if e.MaxAttempts < 1 {
		return 1
	}
	return e.MaxAttempts
}

func (e EnvironmentConfig) timeout() time.Duration {
	if e.Timeout <= 0 {
		return 15 * time.Second
	}
	return e.Timeout
}

// MaxSubmitDuration is the longest a Submit can run: every attempt timing out
// plus the backoff waits between them.
func (e EnvironmentConfig) MaxSubmitDuration() time.Duration {
	attempts := e.attempts()
	total := time.Duration(attempts) * e.timeout()
	for a := 1; a < attempts; a++ {
		total += backoff(e.BackoffBase, a)
	}
	return total
}
