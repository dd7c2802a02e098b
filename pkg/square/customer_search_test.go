package square

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"
)

type customerAPI struct {
	searches []map[string]any
	creates  int
	found    string
}

func newCustomerServer(t *testing.T, api *customerAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v2/customers/search":
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode search: %v", err)
			}
			api.searches = append(api.searches, body)
			if api.found == "" {
				_, _ = w.Write([]byte(`{}`))
				return
			}
			_, _ = w.Write([]byte(`{"customers":[{"id":"` + api.found + `","reference_id":"acct-1"}]}`))
		case "/v2/customers":
			api.creates++
			_, _ = w.Write([]byte(`{"customer":{"id":"cust-new","reference_id":"acct-1"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return &Client{sdk: sqclient.NewClient(sqoption.WithBaseURL(srv.URL), sqoption.WithToken("token"))}
}

func TestEnsureCustomerReusesAccountReference(t *testing.T) {
	api := &customerAPI{found: "cust-1"}
	c := newCustomerServer(t, api)

	customer, err := c.EnsureCustomer(context.Background(), CustomerCreateParams{ReferenceID: "acct-1", Email: "owner@example.com"})
	if err != nil {
		t.Fatalf("ensure customer: %v", err)
	}
	if stringValue(customer.GetID()) != "cust-1" || api.creates != 0 {
		t.Fatalf("expected existing customer, got %v creates=%d", stringValue(customer.GetID()), api.creates)
	}
	filter := api.searches[0]["query"].(map[string]any)["filter"].(map[string]any)
	if _, ok := filter["email_address"]; ok {
		t.Fatalf("search must not match by email: %v", filter)
	}
	if filter["reference_id"].(map[string]any)["exact"] != "acct-1" {
		t.Fatalf("expected reference filter, got %v", filter)
	}
}

func TestEnsureCustomerCreatesWhenMissing(t *testing.T) {
	api := &customerAPI{}
	c := newCustomerServer(t, api)

	customer, err := c.EnsureCustomer(context.Background(), CustomerCreateParams{ReferenceID: "acct-1", IdempotencyKey: "k:customer"})
	if err != nil {
		t.Fatalf("ensure customer: %v", err)
	}
	if stringValue(customer.GetID()) != "cust-new" || api.creates != 1 {
		t.Fatalf("expected created customer, got %v creates=%d", stringValue(customer.GetID()), api.creates)
	}
}

func TestFindCustomerRequiresAccount(t *testing.T) {
	c := newCustomerServer(t, &customerAPI{})
	if _, err := c.FindCustomerByAccount(context.Background(), " "); err == nil {
		t.Fatal("expected error for blank account reference")
	}
}
