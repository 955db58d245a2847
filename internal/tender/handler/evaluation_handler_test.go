package handler_test

import (
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/tanafus/tender/internal/tender/entity"
	"github.com/tanafus/tender/internal/tender/testutil"
)

// evalFixture seeds a tender in evaluation with two imported bids
type evalFixture struct {
	env    *testutil.TestEnv
	tender *entity.Tender
	bidLow *entity.BidSubmission // 折算总价较低
	bidHi  *entity.BidSubmission
}

func setupEvalFixture(t *testing.T) *evalFixture {
	t.Helper()
	env := testutil.SetupEnv(t)

	tender := testutil.SeedTender(t, env.DB, time.Now().Add(-time.Hour))
	env.DB.Model(tender).Update("status", entity.TenderStatusEvaluation)
	tender.Status = entity.TenderStatusEvaluation

	bidLow := testutil.SeedImportedBid(t, env.DB, tender.ID, "bidder-low", 100000, time.Now().Add(-2*time.Hour))
	bidHi := testutil.SeedImportedBid(t, env.DB, tender.ID, "bidder-high", 125000, time.Now().Add(-time.Hour))

	return &evalFixture{env: env, tender: tender, bidLow: bidLow, bidHi: bidHi}
}

func (f *evalFixture) setupPanel(t *testing.T, panelists []string, blind bool) {
	t.Helper()
	w := testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/setup",
		map[string]interface{}{"panelist_ids": panelists, "blind_mode": blind},
		testutil.AdminToken())
	if w.Code != http.StatusCreated {
		t.Fatalf("panel setup: expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

// submitAllScores scores both bids on both criteria for one panelist;
// final controls whether the batch is submitted as the panelist's final word
func (f *evalFixture) submitAllScores(t *testing.T, panelistID string, final bool, low1, low2, hi1, hi2 float64) {
	t.Helper()
	var criteria []entity.EvaluationCriterion
	f.env.DB.Where("tender_id = ?", f.tender.ID).Order("sort_order ASC").Find(&criteria)
	if len(criteria) != 2 {
		t.Fatalf("expected 2 criteria, got %d", len(criteria))
	}

	scores := []map[string]interface{}{
		{"bid_submission_id": f.bidLow.ID, "criterion_id": criteria[0].ID, "score": low1, "comment": comment(low1)},
		{"bid_submission_id": f.bidLow.ID, "criterion_id": criteria[1].ID, "score": low2, "comment": comment(low2)},
		{"bid_submission_id": f.bidHi.ID, "criterion_id": criteria[0].ID, "score": hi1, "comment": comment(hi1)},
		{"bid_submission_id": f.bidHi.ID, "criterion_id": criteria[1].ID, "score": hi2, "comment": comment(hi2)},
	}
	w := testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/scores",
		map[string]interface{}{"scores": scores, "is_final_submission": final},
		testutil.PanelistToken(panelistID))
	if w.Code != http.StatusOK {
		t.Fatalf("submit scores: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func comment(score float64) string {
	if score < 3 || score > 8 {
		return "justified by test fixture"
	}
	return ""
}

func TestPanelSetupOnlyDuringEvaluation(t *testing.T) {
	env := testutil.SetupEnv(t)
	tender := testutil.SeedTender(t, env.DB, time.Now().Add(24*time.Hour)) // draft

	w := testutil.DoRequest(env.Router, http.MethodPost,
		"/api/v1/tenders/"+tender.ID+"/evaluation/setup",
		map[string]interface{}{"panelist_ids": []string{"p1"}},
		testutil.AdminToken())
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestScoreJustificationRule(t *testing.T) {
	f := setupEvalFixture(t)
	f.setupPanel(t, []string{"p1", "p2"}, false)

	var criteria []entity.EvaluationCriterion
	f.env.DB.Where("tender_id = ?", f.tender.ID).Order("sort_order ASC").Find(&criteria)

	// 2分无评语 → 缺评语错误
	w := testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/scores",
		map[string]interface{}{"scores": []map[string]interface{}{
			{"bid_submission_id": f.bidLow.ID, "criterion_id": criteria[0].ID, "score": 2},
		}},
		testutil.PanelistToken("p1"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if testutil.ParseResponse(w)["code"].(float64) != 40003 {
		t.Fatalf("expected business code 40003")
	}

	// 恰好3分和8分不需要评语
	w2 := testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/scores",
		map[string]interface{}{"scores": []map[string]interface{}{
			{"bid_submission_id": f.bidLow.ID, "criterion_id": criteria[0].ID, "score": 3},
			{"bid_submission_id": f.bidLow.ID, "criterion_id": criteria[1].ID, "score": 8},
		}},
		testutil.PanelistToken("p1"))
	if w2.Code != http.StatusOK {
		t.Fatalf("boundary scores: expected 200, got %d: %s", w2.Code, w2.Body.String())
	}

	// 非小组成员不能评分
	w3 := testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/scores",
		map[string]interface{}{"scores": []map[string]interface{}{
			{"bid_submission_id": f.bidLow.ID, "criterion_id": criteria[0].ID, "score": 5},
		}},
		testutil.PanelistToken("outsider"))
	if w3.Code != http.StatusForbidden {
		t.Fatalf("outsider: expected 403, got %d: %s", w3.Code, w3.Body.String())
	}
}

func TestLockBarrierAndImmutability(t *testing.T) {
	f := setupEvalFixture(t)
	f.setupPanel(t, []string{"p1", "p2"}, false)
	token := testutil.AdminToken()

	// 未显式confirm不执行锁定
	f.submitAllScores(t, "p1", true, 8, 7, 5, 6)
	w0 := testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/lock-scores", nil, token)
	if w0.Code != http.StatusBadRequest {
		t.Fatalf("lock without confirm: expected 400, got %d: %s", w0.Code, w0.Body.String())
	}

	// 只有p1评完 → 锁定被拒，缺失组合被一次性列出
	w := testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/lock-scores",
		map[string]interface{}{"confirm": true}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("incomplete lock: expected 400, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if resp["code"].(float64) != 40005 {
		t.Fatalf("expected business code 40005, got %v", resp["code"])
	}
	missing := resp["data"].(map[string]interface{})["fields"].([]interface{})
	if len(missing) != 4 { // 2 bids × 2 criteria × p2
		t.Fatalf("expected 4 missing combinations, got %d", len(missing))
	}

	// p2先以草稿补齐 → 草稿不计入完成度，锁定仍被拒
	f.submitAllScores(t, "p2", false, 6, 7, 5, 6)
	wDraft := testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/lock-scores",
		map[string]interface{}{"confirm": true}, token)
	if wDraft.Code != http.StatusBadRequest {
		t.Fatalf("draft-only lock: expected 400, got %d: %s", wDraft.Code, wDraft.Body.String())
	}
	draftResp := testutil.ParseResponse(wDraft)
	if draftResp["code"].(float64) != 40005 {
		t.Fatalf("expected business code 40005, got %v", draftResp["code"])
	}
	if got := len(draftResp["data"].(map[string]interface{})["fields"].([]interface{})); got != 4 {
		t.Fatalf("expected p2's 4 draft combinations reported missing, got %d", got)
	}

	// p2定稿 → 锁定成功，且重复锁定幂等
	f.submitAllScores(t, "p2", true, 6, 7, 5, 6)
	w2 := testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/lock-scores",
		map[string]interface{}{"confirm": true}, token)
	if w2.Code != http.StatusOK {
		t.Fatalf("lock: expected 200, got %d: %s", w2.Code, w2.Body.String())
	}
	w3 := testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/lock-scores",
		map[string]interface{}{"confirm": true}, token)
	if w3.Code != http.StatusOK {
		t.Fatalf("re-lock: expected 200, got %d: %s", w3.Code, w3.Body.String())
	}

	// 锁定后不允许再提交评分
	var criteria []entity.EvaluationCriterion
	f.env.DB.Where("tender_id = ?", f.tender.ID).Find(&criteria)
	w4 := testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/scores",
		map[string]interface{}{"scores": []map[string]interface{}{
			{"bid_submission_id": f.bidLow.ID, "criterion_id": criteria[0].ID, "score": 9, "comment": "late revision"},
		}},
		testutil.PanelistToken("p1"))
	if w4.Code != http.StatusConflict {
		t.Fatalf("post-lock submit: expected 409, got %d: %s", w4.Code, w4.Body.String())
	}
	if testutil.ParseResponse(w4)["code"].(float64) != 40904 {
		t.Fatalf("expected business code 40904")
	}
}

func TestCommercialAndCombinedScores(t *testing.T) {
	f := setupEvalFixture(t)
	f.setupPanel(t, []string{"p1", "p2"}, false)
	token := testutil.AdminToken()

	// bidLow: c1 avg 7 (8,6), c2 avg 7 (7,7) → tech 7×0.6+7×0.4 = 7.0
	// bidHi:  c1 avg 5 (5,5), c2 avg 6 (6,6) → tech 5×0.6+6×0.4 = 5.4
	f.submitAllScores(t, "p1", true, 8, 7, 5, 6)
	f.submitAllScores(t, "p2", true, 6, 7, 5, 6)
	testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/lock-scores",
		map[string]interface{}{"confirm": true}, token)

	w := testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/calculate-commercial-scores", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("commercial: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	scoreByBid := map[string]float64{}
	for _, raw := range items {
		item := raw.(map[string]interface{})
		scoreByBid[item["bid_submission_id"].(string)] = item["score"].(float64)
	}
	// 最低价满分10；另一家 10×100000/125000 = 8
	if scoreByBid[f.bidLow.ID] != 10 {
		t.Fatalf("lowest bid commercial score = %v, want 10", scoreByBid[f.bidLow.ID])
	}
	if math.Abs(scoreByBid[f.bidHi.ID]-8) > 0.01 {
		t.Fatalf("higher bid commercial score = %v, want 8", scoreByBid[f.bidHi.ID])
	}

	// 请求权重与招标配置不一致 → 权重不匹配
	wMismatch := testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/calculate-combined",
		map[string]interface{}{"technical_weight": 40, "commercial_weight": 60}, token)
	if wMismatch.Code != http.StatusBadRequest {
		t.Fatalf("weight mismatch: expected 400, got %d: %s", wMismatch.Code, wMismatch.Body.String())
	}
	if testutil.ParseResponse(wMismatch)["code"].(float64) != 40004 {
		t.Fatalf("expected business code 40004")
	}

	w2 := testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/calculate-combined",
		map[string]interface{}{"technical_weight": 60, "commercial_weight": 40}, token)
	if w2.Code != http.StatusOK {
		t.Fatalf("combined: expected 200, got %d: %s", w2.Code, w2.Body.String())
	}
	entries := testutil.ParseResponse(w2)["data"].(map[string]interface{})["items"].([]interface{})
	if len(entries) != 2 {
		t.Fatalf("expected 2 combined entries, got %d", len(entries))
	}

	first := entries[0].(map[string]interface{})
	// bidLow: 7.0×0.6 + 10×0.4 = 8.2
	if first["bid_submission_id"].(string) != f.bidLow.ID {
		t.Fatalf("expected bidLow ranked first")
	}
	if math.Abs(first["combined_score"].(float64)-8.2) > 0.01 {
		t.Fatalf("combined score = %v, want 8.2", first["combined_score"])
	}
	if first["final_rank"].(float64) != 1 || !first["is_recommended"].(bool) {
		t.Fatalf("expected rank 1 recommended, got %v", first)
	}

	second := entries[1].(map[string]interface{})
	// bidHi: 5.4×0.6 + 8×0.4 = 6.44
	if math.Abs(second["combined_score"].(float64)-6.44) > 0.01 {
		t.Fatalf("combined score = %v, want 6.44", second["combined_score"])
	}
}

func TestThreeBidInversePriceRanking(t *testing.T) {
	env := testutil.SetupEnv(t)
	token := testutil.AdminToken()

	tender := testutil.SeedTender(t, env.DB, time.Now().Add(-time.Hour))
	env.DB.Model(tender).Updates(map[string]interface{}{
		"status":            entity.TenderStatusEvaluation,
		"technical_weight":  40,
		"commercial_weight": 60,
	})

	bid1 := testutil.SeedImportedBid(t, env.DB, tender.ID, "bidder-1", 150000, time.Now().Add(-3*time.Hour))
	bid2 := testutil.SeedImportedBid(t, env.DB, tender.ID, "bidder-2", 120000, time.Now().Add(-2*time.Hour))
	bid3 := testutil.SeedImportedBid(t, env.DB, tender.ID, "bidder-3", 200000, time.Now().Add(-time.Hour))

	w := testutil.DoRequest(env.Router, http.MethodPost,
		"/api/v1/tenders/"+tender.ID+"/evaluation/setup",
		map[string]interface{}{"panelist_ids": []string{"p1"}}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("panel: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var criteria []entity.EvaluationCriterion
	env.DB.Where("tender_id = ?", tender.ID).Order("sort_order ASC").Find(&criteria)

	// 两项准则打同分 → 技术分等于该分值
	scores := []map[string]interface{}{}
	for bidID, tech := range map[string]float64{bid1.ID: 6.5, bid2.ID: 7.5, bid3.ID: 5.0} {
		for _, c := range criteria {
			scores = append(scores, map[string]interface{}{
				"bid_submission_id": bidID, "criterion_id": c.ID, "score": tech,
			})
		}
	}
	w2 := testutil.DoRequest(env.Router, http.MethodPost,
		"/api/v1/tenders/"+tender.ID+"/evaluation/scores",
		map[string]interface{}{"scores": scores, "is_final_submission": true},
		testutil.PanelistToken("p1"))
	if w2.Code != http.StatusOK {
		t.Fatalf("scores: expected 200, got %d: %s", w2.Code, w2.Body.String())
	}

	testutil.DoRequest(env.Router, http.MethodPost,
		"/api/v1/tenders/"+tender.ID+"/evaluation/lock-scores",
		map[string]interface{}{"confirm": true}, token)
	testutil.DoRequest(env.Router, http.MethodPost,
		"/api/v1/tenders/"+tender.ID+"/evaluation/calculate-commercial-scores", nil, token)

	w3 := testutil.DoRequest(env.Router, http.MethodPost,
		"/api/v1/tenders/"+tender.ID+"/evaluation/calculate-combined",
		map[string]interface{}{"technical_weight": 40, "commercial_weight": 60}, token)
	if w3.Code != http.StatusOK {
		t.Fatalf("combined: expected 200, got %d: %s", w3.Code, w3.Body.String())
	}
	entries := testutil.ParseResponse(w3)["data"].(map[string]interface{})["items"].([]interface{})
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	// 最低价120000锚定满分：商务分 8.0 / 10.0 / 6.0；
	// 综合分 6.5×0.4+8×0.6=7.4, 7.5×0.4+10×0.6=9.0, 5×0.4+6×0.6=5.6
	wantOrder := []string{bid2.ID, bid1.ID, bid3.ID}
	wantCombined := []float64{9.0, 7.4, 5.6}
	for i, raw := range entries {
		e := raw.(map[string]interface{})
		if e["bid_submission_id"].(string) != wantOrder[i] {
			t.Fatalf("rank %d: got bid %v, want %v", i+1, e["bid_submission_id"], wantOrder[i])
		}
		if math.Abs(e["combined_score"].(float64)-wantCombined[i]) > 0.01 {
			t.Fatalf("rank %d combined = %v, want %v", i+1, e["combined_score"], wantCombined[i])
		}
	}
	top := entries[0].(map[string]interface{})
	if !top["is_recommended"].(bool) {
		t.Fatal("cheapest-anchored top bid should be recommended")
	}
}

func TestCombinedTieBreaksOnLowerTotal(t *testing.T) {
	f := setupEvalFixture(t)
	// 两家同折算总价不同：同样的技术分 + 同样商务分时低价在前。
	// 这里用相同技术分但不同总价，商务分不同，构造不出平分；
	// 改为直接把两家总价设为相同，技术分相同 → 综合分相同 → 按递交时间破平。
	f.env.DB.Model(f.bidHi).Update("normalized_total_amount", 100000.0)
	f.bidHi.NormalizedTotalAmount = 100000

	f.setupPanel(t, []string{"p1"}, false)
	token := testutil.AdminToken()
	f.submitAllScores(t, "p1", true, 7, 7, 7, 7)
	testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/lock-scores",
		map[string]interface{}{"confirm": true}, token)
	testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/calculate-commercial-scores", nil, token)

	w := testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/calculate-combined", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("combined: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	entries := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	first := entries[0].(map[string]interface{})
	// 总价也相同 → 更早递交的bidLow在前
	if first["bid_submission_id"].(string) != f.bidLow.ID {
		t.Fatalf("expected earlier submission to win the tie")
	}
}

func TestCommercialRequiresTwoEligibleBids(t *testing.T) {
	env := testutil.SetupEnv(t)
	token := testutil.AdminToken()

	tender := testutil.SeedTender(t, env.DB, time.Now().Add(-time.Hour))
	env.DB.Model(tender).Update("status", entity.TenderStatusEvaluation)
	testutil.SeedImportedBid(t, env.DB, tender.ID, "only-bidder", 90000, time.Now())

	w := testutil.DoRequest(env.Router, http.MethodPost,
		"/api/v1/tenders/"+tender.ID+"/evaluation/setup",
		map[string]interface{}{"panelist_ids": []string{"p1"}}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("panel: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// 直接把小组置为已锁定，跳过评分
	env.DB.Model(&entity.EvaluationPanel{}).Where("tender_id = ?", tender.ID).
		Update("status", entity.EvalStatusTechnicalLocked)

	w2 := testutil.DoRequest(env.Router, http.MethodPost,
		"/api/v1/tenders/"+tender.ID+"/evaluation/calculate-commercial-scores", nil, token)
	if w2.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w2.Code, w2.Body.String())
	}
	if testutil.ParseResponse(w2)["code"].(float64) != 42201 {
		t.Fatalf("expected business code 42201")
	}
}

func TestBlindModeScorecardAliases(t *testing.T) {
	f := setupEvalFixture(t)
	f.setupPanel(t, []string{"p1"}, true)
	token := testutil.AdminToken()

	f.submitAllScores(t, "p1", true, 7, 7, 5, 5)
	testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/lock-scores",
		map[string]interface{}{"confirm": true}, token)
	testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/calculate-commercial-scores", nil, token)
	testutil.DoRequest(f.env.Router, http.MethodPost,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/calculate-combined", nil, token)

	w := testutil.DoRequest(f.env.Router, http.MethodGet,
		"/api/v1/tenders/"+f.tender.ID+"/evaluation/combined-scorecard", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("scorecard: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	entries := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	for _, raw := range entries {
		label := raw.(map[string]interface{})["bidder_label"].(string)
		if label != "Bidder A" && label != "Bidder B" {
			t.Fatalf("blind mode leaked bidder identity: %q", label)
		}
	}
}
