package enums

import "testing"

func TestParseLifecycleStage(t *testing.T) {
	for _, stage := range AllLifecycleStages() {
		got, err := ParseLifecycleStage(stage.String())
		if err != nil || got != stage {
			t.Fatalf("round trip failed for %s: %v", stage, err)
		}
	}
	if _, err := ParseLifecycleStage("pending_card"); err == nil {
		t.Fatal("expected unknown stage to fail")
	}
}

func TestBillingCycleIsAnnual(t *testing.T) {
	cases := map[BillingCycle]bool{
		BillingCycleNone:          false,
		BillingCycleMonthly:       false,
		BillingCycleAnnual:        true,
		BillingCycleAnnualInvoice: true,
	}
	for cycle, want := range cases {
		if cycle.IsAnnual() != want {
			t.Fatalf("%s: expected IsAnnual %v", cycle, want)
		}
	}
}

func TestEventKindPrecedence(t *testing.T) {
	ordered := []BillingEventKind{
		EventKindSubscriptionResumed,
		EventKindInvoicePaid,
		EventKindPaymentFailed,
		EventKindSubscriptionCanceled,
	}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].Precedence() >= ordered[i].Precedence() {
			t.Fatalf("%s should rank below %s", ordered[i-1], ordered[i])
		}
	}
}

func TestEventKindClassification(t *testing.T) {
	if !EventKindInvoicePaid.IsExternal() || EventKindInvoicePaid.IsInternal() {
		t.Fatal("invoice_paid is an external kind")
	}
	if EventKindTrialEnded.IsExternal() || !EventKindTrialEnded.IsInternal() {
		t.Fatal("trial_ended is an internal kind")
	}
	if _, err := ParseBillingEventKind("customer.updated"); err == nil {
		t.Fatal("expected unknown kind to fail")
	}
}
