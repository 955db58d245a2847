package handler_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/tanafus/tender/internal/tender/entity"
	"github.com/tanafus/tender/internal/tender/testutil"
)

func TestCreateTenderWeightMismatch(t *testing.T) {
	env := testutil.SetupEnv(t)
	token := testutil.AdminToken()

	body := map[string]interface{}{
		"reference":           "TDR-X1",
		"title":               "Weights off",
		"technical_weight":    50,
		"commercial_weight":   40,
		"submission_deadline": time.Now().Add(24 * time.Hour),
	}
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders", body, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if resp["code"].(float64) != 40004 {
		t.Fatalf("expected business code 40004, got %v", resp["code"])
	}
}

func TestPublishEnumeratesAllViolations(t *testing.T) {
	env := testutil.SetupEnv(t)
	token := testutil.AdminToken()

	// 无BOQ、无评标准则的草稿
	body := map[string]interface{}{
		"reference":           "TDR-X2",
		"title":               "Empty draft",
		"technical_weight":    60,
		"commercial_weight":   40,
		"submission_deadline": time.Now().Add(24 * time.Hour),
	}
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders", body, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	tenderID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w2 := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tenderID+"/publish", nil, token)
	if w2.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w2.Code, w2.Body.String())
	}
	resp := testutil.ParseResponse(w2)
	fields := resp["data"].(map[string]interface{})["fields"].([]interface{})
	if len(fields) < 2 {
		t.Fatalf("expected both boq_items and criteria violations, got %v", fields)
	}
}

func TestTenderLifecycleHappyPath(t *testing.T) {
	env := testutil.SetupEnv(t)
	token := testutil.AdminToken()

	tender := testutil.SeedTender(t, env.DB, time.Now().Add(-time.Hour))

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tender.ID+"/publish", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("publish: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w2 := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tender.ID+"/bids/open", nil, token)
	if w2.Code != http.StatusOK {
		t.Fatalf("open-bids: expected 200, got %d: %s", w2.Code, w2.Body.String())
	}
	data := testutil.ParseResponse(w2)["data"].(map[string]interface{})
	if data["status"] != entity.TenderStatusEvaluation {
		t.Fatalf("expected status evaluation, got %v", data["status"])
	}

	// 重复开标是幂等的
	w3 := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tender.ID+"/bids/open", nil, token)
	if w3.Code != http.StatusOK {
		t.Fatalf("re-open-bids: expected 200, got %d: %s", w3.Code, w3.Body.String())
	}
}

func TestOpenBidsBeforeDeadline(t *testing.T) {
	env := testutil.SetupEnv(t)
	token := testutil.AdminToken()

	tender := testutil.SeedTender(t, env.DB, time.Now().Add(24*time.Hour))
	testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tender.ID+"/publish", nil, token)

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tender.ID+"/bids/open", nil, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCancelIsTerminal(t *testing.T) {
	env := testutil.SetupEnv(t)
	token := testutil.AdminToken()

	tender := testutil.SeedTender(t, env.DB, time.Now().Add(24*time.Hour))

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tender.ID+"/cancel",
		map[string]interface{}{"reason": "budget withdrawn"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w2 := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tender.ID+"/cancel",
		map[string]interface{}{"reason": "again"}, token)
	if w2.Code != http.StatusConflict {
		t.Fatalf("re-cancel: expected 409, got %d: %s", w2.Code, w2.Body.String())
	}
	resp := testutil.ParseResponse(w2)
	if resp["code"].(float64) != 40902 {
		t.Fatalf("expected business code 40902, got %v", resp["code"])
	}
}

func TestSubmitBidLateFlag(t *testing.T) {
	env := testutil.SetupEnv(t)
	token := testutil.AdminToken()

	tender := testutil.SeedTender(t, env.DB, time.Now().Add(time.Hour))
	testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tender.ID+"/publish", nil, token)

	// 截止前：不打迟交标
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tender.ID+"/bids",
		map[string]interface{}{"bidder_id": "bidder-1"}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if testutil.ParseResponse(w)["data"].(map[string]interface{})["is_late"].(bool) {
		t.Fatal("on-time bid flagged late")
	}

	// 截止时间已过：自动打迟交标，仍然接收
	env.DB.Model(&entity.Tender{}).Where("id = ?", tender.ID).
		Update("submission_deadline", time.Now().Add(-time.Minute))

	w2 := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tender.ID+"/bids",
		map[string]interface{}{"bidder_id": "bidder-2"}, token)
	if w2.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w2.Code, w2.Body.String())
	}
	if !testutil.ParseResponse(w2)["data"].(map[string]interface{})["is_late"].(bool) {
		t.Fatal("late bid not flagged late")
	}

	// 同一投标人重复投标被拒
	w3 := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tender.ID+"/bids",
		map[string]interface{}{"bidder_id": "bidder-1"}, token)
	if w3.Code != http.StatusBadRequest {
		t.Fatalf("duplicate bidder: expected 400, got %d: %s", w3.Code, w3.Body.String())
	}
}

func TestLateBidDecisionOnce(t *testing.T) {
	env := testutil.SetupEnv(t)
	token := testutil.AdminToken()

	tender := testutil.SeedTender(t, env.DB, time.Now().Add(-time.Hour))
	bid := testutil.SeedBid(t, env.DB, tender.ID, "bidder-late", entity.BidStatusSubmitted, time.Now())
	env.DB.Model(bid).Update("is_late", true)

	// 无理由不允许裁决
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/bids/"+bid.ID+"/accept-late",
		map[string]interface{}{}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	w2 := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/bids/"+bid.ID+"/accept-late",
		map[string]interface{}{"reason": "courier delay evidence accepted"}, token)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w2.Code, w2.Body.String())
	}

	// 裁决只允许一次
	w3 := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/bids/"+bid.ID+"/reject-late",
		map[string]interface{}{"reason": "changed my mind"}, token)
	if w3.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w3.Code, w3.Body.String())
	}
	if testutil.ParseResponse(w3)["code"].(float64) != 40903 {
		t.Fatalf("expected business code 40903")
	}
}

func TestDisqualifyRequiresOpenedBid(t *testing.T) {
	env := testutil.SetupEnv(t)
	token := testutil.AdminToken()

	tender := testutil.SeedTender(t, env.DB, time.Now().Add(-time.Hour))
	bid := testutil.SeedBid(t, env.DB, tender.ID, "bidder-dq", entity.BidStatusSubmitted, time.Now())

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/bids/"+bid.ID+"/disqualify",
		map[string]interface{}{"reason": "missing bid bond"}, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("unopened bid: expected 409, got %d: %s", w.Code, w.Body.String())
	}

	env.DB.Model(bid).Update("status", entity.BidStatusOpened)

	w2 := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/bids/"+bid.ID+"/disqualify",
		map[string]interface{}{"reason": "missing bid bond"}, token)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w2.Code, w2.Body.String())
	}

	w3 := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/bids/"+bid.ID+"/disqualify",
		map[string]interface{}{"reason": "again"}, token)
	if w3.Code != http.StatusConflict {
		t.Fatalf("re-disqualify: expected 409, got %d: %s", w3.Code, w3.Body.String())
	}
}

func TestNonAdminCannotPublish(t *testing.T) {
	env := testutil.SetupEnv(t)

	tender := testutil.SeedTender(t, env.DB, time.Now().Add(24*time.Hour))
	token := testutil.PanelistToken("user-basic")

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tender.ID+"/publish", nil, token)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}
