package integration

import (
	"net/http"
	"testing"
	"time"
)

// sampleOrder returns an order context payload for discount calls.
func sampleOrder(userID string, amount int64) map[string]interface{} {
	return map[string]interface{}{
		"user_id":      userID,
		"order_amount": amount,
		"market_id":    "us",
		"line_items": []map[string]interface{}{
			{"product_id": "p1", "quantity": 2, "unit_price": amount / 2},
		},
	}
}

// createActiveCampaign creates a percentage campaign via the API and
// activates it, returning its ID and code.
func createActiveCampaign(t *testing.T, discountValue int64) (string, string) {
	t.Helper()

	code := uniqueCode("IT")
	now := time.Now().UTC()
	body := map[string]interface{}{
		"name":           "Integration Campaign " + code,
		"type":           "percentage",
		"target_type":    "global",
		"code":           code,
		"discount_value": discountValue,
		"start_date":     now.Add(-time.Hour).Format(time.RFC3339),
		"end_date":       now.Add(24 * time.Hour).Format(time.RFC3339),
	}

	status, data := httpPost(t, baseURL()+"/api/v1/campaigns", body)
	requireStatus(t, status, http.StatusCreated)
	id := extractString(t, data, "data.id")

	status, _ = httpPatch(t, baseURL()+"/api/v1/campaigns/"+id+"/status",
		map[string]interface{}{"status": "active"})
	requireStatus(t, status, http.StatusOK)

	return id, code
}

// TestCampaignLifecycle walks a campaign from draft through activation to
// cancellation.
func TestCampaignLifecycle(t *testing.T) {
	skipIfNotRunning(t)

	id, code := createActiveCampaign(t, 10)

	// Lookup by ID and by code.
	status, data := httpGet(t, baseURL()+"/api/v1/campaigns/"+id)
	requireStatus(t, status, http.StatusOK)
	if got := extractString(t, data, "data.status"); got != "active" {
		t.Fatalf("expected status active, got %s", got)
	}

	status, data = httpGet(t, baseURL()+"/api/v1/campaigns/code/"+code)
	requireStatus(t, status, http.StatusOK)
	if got := extractString(t, data, "data.id"); got != id {
		t.Fatalf("expected campaign %s by code, got %s", id, got)
	}

	// DELETE cancels rather than removes.
	status, data = httpDelete(t, baseURL()+"/api/v1/campaigns/"+id)
	requireStatus(t, status, http.StatusOK)
	if got := extractString(t, data, "data.status"); got != "cancelled" {
		t.Fatalf("expected status cancelled after delete, got %s", got)
	}

	status, _ = httpGet(t, baseURL()+"/api/v1/campaigns/"+id)
	requireStatus(t, status, http.StatusOK)
}

// TestCampaignInvalidTransition verifies that terminal statuses reject
// further transitions.
func TestCampaignInvalidTransition(t *testing.T) {
	skipIfNotRunning(t)

	id, _ := createActiveCampaign(t, 10)

	status, _ := httpDelete(t, baseURL()+"/api/v1/campaigns/"+id)
	requireStatus(t, status, http.StatusOK)

	// cancelled is terminal; reactivation must fail.
	status, data := httpPatch(t, baseURL()+"/api/v1/campaigns/"+id+"/status",
		map[string]interface{}{"status": "active"})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for transition out of cancelled, got %d (body: %v)", status, data)
	}
}

// TestPreviewMatchesApply verifies the preview/apply consistency contract:
// a preview and an immediate apply produce the same discount.
func TestPreviewMatchesApply(t *testing.T) {
	skipIfNotRunning(t)

	_, code := createActiveCampaign(t, 15)
	userID := uniqueID("user")
	order := sampleOrder(userID, 10000)

	status, previewData := httpPost(t, baseURL()+"/api/v1/discounts/preview",
		map[string]interface{}{"code": code, "order": order})
	requireStatus(t, status, http.StatusOK)
	previewDiscount := extractFloat(t, previewData, "data.total_discount")

	status, applyData := httpPost(t, baseURL()+"/api/v1/discounts/apply",
		map[string]interface{}{
			"code":            code,
			"order_id":        uniqueID("order"),
			"idempotency_key": uniqueID("req"),
			"order":           order,
		})
	requireStatus(t, status, http.StatusCreated)
	appliedDiscount := extractFloat(t, applyData, "data.total_discount")

	if previewDiscount != appliedDiscount {
		t.Fatalf("preview discount %v != applied discount %v", previewDiscount, appliedDiscount)
	}
	if appliedDiscount != 1500 {
		t.Fatalf("expected 15%% of 10000 = 1500, got %v", appliedDiscount)
	}
}

// TestApplyIsIdempotent verifies that replaying an apply with the same
// idempotency key returns the original result without a second commit.
func TestApplyIsIdempotent(t *testing.T) {
	skipIfNotRunning(t)

	id, code := createActiveCampaign(t, 10)
	userID := uniqueID("user")
	orderID := uniqueID("order")
	idemKey := uniqueID("req")

	applyBody := map[string]interface{}{
		"code":            code,
		"order_id":        orderID,
		"idempotency_key": idemKey,
		"order":           sampleOrder(userID, 10000),
	}

	status, first := httpPost(t, baseURL()+"/api/v1/discounts/apply", applyBody)
	requireStatus(t, status, http.StatusCreated)

	status, second := httpPost(t, baseURL()+"/api/v1/discounts/apply", applyBody)
	requireStatus(t, status, http.StatusOK)

	if extractField(second, "data.replayed") != true {
		t.Fatal("expected replayed=true on second apply")
	}
	if extractFloat(t, first, "data.total_discount") != extractFloat(t, second, "data.total_discount") {
		t.Fatal("replayed apply returned a different discount")
	}

	// The usage counter advanced exactly once.
	status, data := httpGet(t, baseURL()+"/api/v1/campaigns/"+id)
	requireStatus(t, status, http.StatusOK)
	if got := extractFloat(t, data, "data.current_usage_count"); got != 1 {
		t.Fatalf("expected usage count 1 after replay, got %v", got)
	}
}

// TestValidateUnknownCode verifies the error envelope for a code that
// does not exist.
func TestValidateUnknownCode(t *testing.T) {
	skipIfNotRunning(t)

	status, data := httpPost(t, baseURL()+"/api/v1/discounts/validate",
		map[string]interface{}{
			"code":  "NOSUCHCODE",
			"order": sampleOrder(uniqueID("user"), 10000),
		})
	requireStatus(t, status, http.StatusNotFound)
	if got := extractString(t, data, "error.code"); got != "NOT_FOUND" {
		t.Fatalf("expected error code NOT_FOUND, got %s", got)
	}
}

// TestUsageLimitEnforced verifies that a campaign with a single usage slot
// rejects the second apply.
func TestUsageLimitEnforced(t *testing.T) {
	skipIfNotRunning(t)

	code := uniqueCode("LIM")
	now := time.Now().UTC()
	body := map[string]interface{}{
		"name":            "Limited Campaign " + code,
		"type":            "percentage",
		"target_type":     "global",
		"code":            code,
		"discount_value":  10,
		"max_usage_count": 1,
		"start_date":      now.Add(-time.Hour).Format(time.RFC3339),
		"end_date":        now.Add(24 * time.Hour).Format(time.RFC3339),
	}
	status, data := httpPost(t, baseURL()+"/api/v1/campaigns", body)
	requireStatus(t, status, http.StatusCreated)
	id := extractString(t, data, "data.id")

	status, _ = httpPatch(t, baseURL()+"/api/v1/campaigns/"+id+"/status",
		map[string]interface{}{"status": "active"})
	requireStatus(t, status, http.StatusOK)

	apply := func(orderID string) int {
		s, _ := httpPost(t, baseURL()+"/api/v1/discounts/apply",
			map[string]interface{}{
				"code":            code,
				"order_id":        orderID,
				"idempotency_key": uniqueID("req"),
				"order":           sampleOrder(uniqueID("user"), 10000),
			})
		return s
	}

	requireStatus(t, apply(uniqueID("order")), http.StatusCreated)

	// The slot is gone; the second apply must be rejected.
	second := apply(uniqueID("order"))
	if second != http.StatusConflict && second != http.StatusUnprocessableEntity {
		t.Fatalf("expected 409 or 422 for exhausted campaign, got %d", second)
	}
}
