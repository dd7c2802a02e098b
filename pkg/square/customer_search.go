package square

import (
	"context"
	"errors"
	"strings"

	sq "github.com/square/square-go-sdk"
)

var errAccountReferenceRequired = errors.New("square customer reference (account id) is required")

// FindCustomerByAccount returns the customer whose reference id is the account
// id, or nil when Square has none. Email is never matched; accounts may share
// an address.
func (c *Client) FindCustomerByAccount(ctx context.Context, accountID string) (*sq.Customer, error) {
	if c == nil {
		return nil, errAccessTokenRequired
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, errAccountReferenceRequired
	}

	c.log(ctx, "request", "find_customer", map[string]any{"reference_id": accountID})
	resp, err := c.sdk.Customers.Search(ctx, &sq.SearchCustomersRequest{
		Query: &sq.CustomerQuery{
			Filter: &sq.CustomerFilter{
				ReferenceID: &sq.CustomerTextFilter{Exact: ptrString(accountID)},
			},
		},
		Limit: int64Ptr(1),
	})
	if err != nil {
		c.log(ctx, "error", "find_customer", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "find customer")
	}

	for _, customer := range resp.GetCustomers() {
		if customer != nil && stringValue(customer.GetReferenceID()) == accountID {
			c.log(ctx, "response", "find_customer", map[string]any{"customer_id": stringValue(customer.GetID())})
			return customer, nil
		}
	}
	c.log(ctx, "response", "find_customer", map[string]any{"found": false})
	return nil, nil
}

// EnsureCustomer returns the account's customer, creating it under the account
// reference on first purchase.
func (c *Client) EnsureCustomer(ctx context.Context, params CustomerCreateParams) (*sq.Customer, error) {
	customer, err := c.FindCustomerByAccount(ctx, params.ReferenceID)
	if err != nil || customer != nil {
		return customer, err
	}
	return c.CreateCustomer(ctx, params)
}
