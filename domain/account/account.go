// Package account provides the account view used for delinquency tracking.
package account

import "time"

// Account is the billing view of an API consumer.
type Account struct {
	ID         string
	Delinquent bool
	CreatedAt  time.Time
}
