package handler_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tanafus/tender/internal/tender/entity"
	"github.com/tanafus/tender/internal/tender/testutil"
)

// seedEvaluatedTender puts a tender straight into the ready-for-approval state
func seedEvaluatedTender(t *testing.T, env *testutil.TestEnv) *entity.Tender {
	t.Helper()
	tender := testutil.SeedTender(t, env.DB, time.Now().Add(-time.Hour))
	env.DB.Model(tender).Update("status", entity.TenderStatusEvaluation)
	tender.Status = entity.TenderStatusEvaluation

	panel := &entity.EvaluationPanel{
		ID:            uuid.New().String()[:32],
		TenderID:      tender.ID,
		Status:        entity.EvalStatusCombinedCalculated,
		ScoringMethod: entity.ScoringMethodWeighted,
		PanelistIDs:   entity.StringList{"p1"},
		Version:       1,
	}
	if err := env.DB.Create(panel).Error; err != nil {
		t.Fatalf("Failed to seed panel: %v", err)
	}
	return tender
}

func initiateApproval(t *testing.T, env *testutil.TestEnv, tenderID string, approvers ...string) map[string]interface{} {
	t.Helper()
	levels := make([]map[string]interface{}, 0, len(approvers))
	for _, a := range approvers {
		levels = append(levels, map[string]interface{}{"approver_id": a})
	}
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tenderID+"/approval/initiate",
		map[string]interface{}{"levels": levels}, testutil.AdminToken())
	if w.Code != http.StatusCreated {
		t.Fatalf("initiate: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return testutil.ParseResponse(w)["data"].(map[string]interface{})
}

func decide(env *testutil.TestEnv, tenderID, approver, decision, comment string) *map[string]interface{} {
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tenderID+"/approval/decide",
		map[string]interface{}{"decision": decision, "comment": comment},
		testutil.GenerateTestToken(approver, "Approver "+approver, approver+"@test.com", nil))
	resp := testutil.ParseResponse(w)
	resp["_status"] = float64(w.Code)
	return &resp
}

func TestInitiateRequiresCombinedScores(t *testing.T) {
	env := testutil.SetupEnv(t)
	tender := testutil.SeedTender(t, env.DB, time.Now().Add(-time.Hour))
	env.DB.Model(tender).Update("status", entity.TenderStatusEvaluation)

	panel := &entity.EvaluationPanel{
		ID:            uuid.New().String()[:32],
		TenderID:      tender.ID,
		Status:        entity.EvalStatusScoring,
		ScoringMethod: entity.ScoringMethodWeighted,
		PanelistIDs:   entity.StringList{"p1"},
		Version:       1,
	}
	env.DB.Create(panel)

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tender.ID+"/approval/initiate",
		map[string]interface{}{"levels": []map[string]interface{}{{"approver_id": "u1"}}},
		testutil.AdminToken())
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSequentialApprovalAwardsTender(t *testing.T) {
	env := testutil.SetupEnv(t)
	tender := seedEvaluatedTender(t, env)

	wf := initiateApproval(t, env, tender.ID, "u1", "u2")
	if wf["cycle"].(float64) != 1 || wf["current_level"].(float64) != 1 {
		t.Fatalf("expected cycle 1 level 1, got %v", wf)
	}

	// 非当前级审批人不能决定
	resp := decide(env, tender.ID, "u2", entity.DecisionApprove, "")
	if (*resp)["_status"].(float64) != http.StatusForbidden {
		t.Fatalf("wrong approver: expected 403, got %v", (*resp)["_status"])
	}

	// 第1级批准 → 推进到第2级
	resp = decide(env, tender.ID, "u1", entity.DecisionApprove, "")
	if (*resp)["_status"].(float64) != http.StatusOK {
		t.Fatalf("level 1 approve: expected 200, got %v: %v", (*resp)["_status"], *resp)
	}
	data := (*resp)["data"].(map[string]interface{})
	if data["current_level"].(float64) != 2 {
		t.Fatalf("expected current_level 2, got %v", data["current_level"])
	}

	// 第1级审批人已出局
	resp = decide(env, tender.ID, "u1", entity.DecisionApprove, "")
	if (*resp)["_status"].(float64) != http.StatusForbidden {
		t.Fatalf("past approver: expected 403, got %v", (*resp)["_status"])
	}

	// 末级批准 → 审批通过且招标授标
	resp = decide(env, tender.ID, "u2", entity.DecisionApprove, "")
	if (*resp)["_status"].(float64) != http.StatusOK {
		t.Fatalf("final approve: expected 200, got %v: %v", (*resp)["_status"], *resp)
	}
	data = (*resp)["data"].(map[string]interface{})
	if data["status"] != entity.WorkflowStatusApproved {
		t.Fatalf("expected workflow approved, got %v", data["status"])
	}

	var reloaded entity.Tender
	env.DB.Where("id = ?", tender.ID).First(&reloaded)
	if reloaded.Status != entity.TenderStatusAwarded {
		t.Fatalf("expected tender awarded, got %s", reloaded.Status)
	}

	// 已完结的流程不再接受决定
	resp = decide(env, tender.ID, "u2", entity.DecisionApprove, "")
	if (*resp)["_status"].(float64) != http.StatusConflict {
		t.Fatalf("decided workflow: expected 409, got %v", (*resp)["_status"])
	}
}

func TestRejectRequiresSubstantiveComment(t *testing.T) {
	env := testutil.SetupEnv(t)
	tender := seedEvaluatedTender(t, env)
	initiateApproval(t, env, tender.ID, "u1")

	// 评论太短
	resp := decide(env, tender.ID, "u1", entity.DecisionReject, "bad")
	if (*resp)["_status"].(float64) != http.StatusBadRequest {
		t.Fatalf("short comment: expected 400, got %v", (*resp)["_status"])
	}

	resp = decide(env, tender.ID, "u1", entity.DecisionReject, "pricing assumptions are unrealistic")
	if (*resp)["_status"].(float64) != http.StatusOK {
		t.Fatalf("reject: expected 200, got %v: %v", (*resp)["_status"], *resp)
	}
	if (*resp)["data"].(map[string]interface{})["status"] != entity.WorkflowStatusRejected {
		t.Fatalf("expected workflow rejected")
	}
}

func TestMidChainRejectStopsProgression(t *testing.T) {
	env := testutil.SetupEnv(t)
	tender := seedEvaluatedTender(t, env)
	initiateApproval(t, env, tender.ID, "u1", "u2", "u3")

	decide(env, tender.ID, "u1", entity.DecisionApprove, "")
	resp := decide(env, tender.ID, "u2", entity.DecisionReject, "technical evaluation does not support the recommendation")
	if (*resp)["_status"].(float64) != http.StatusOK {
		t.Fatalf("reject: expected 200, got %v: %v", (*resp)["_status"], *resp)
	}
	data := (*resp)["data"].(map[string]interface{})
	if data["status"] != entity.WorkflowStatusRejected {
		t.Fatalf("expected workflow rejected, got %v", data["status"])
	}
	// 第2级否决后不再推进，第3级保持waiting
	if data["current_level"].(float64) != 2 {
		t.Fatalf("expected current_level to stop at 2, got %v", data["current_level"])
	}
	var levels []entity.ApprovalLevel
	env.DB.Where("workflow_id = ?", data["id"].(string)).Order("level ASC").Find(&levels)
	if len(levels) != 3 || levels[2].Status != entity.LevelStatusWaiting {
		t.Fatalf("expected level 3 still waiting, got %+v", levels)
	}

	// 招标未授标
	var reloaded entity.Tender
	env.DB.Where("id = ?", tender.ID).First(&reloaded)
	if reloaded.Status != entity.TenderStatusEvaluation {
		t.Fatalf("expected tender still in evaluation, got %s", reloaded.Status)
	}
}

func TestReinitiateAfterRejectStartsNewCycle(t *testing.T) {
	env := testutil.SetupEnv(t)
	tender := seedEvaluatedTender(t, env)

	initiateApproval(t, env, tender.ID, "u1")

	// 流程进行中不允许再次发起
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/tenders/"+tender.ID+"/approval/initiate",
		map[string]interface{}{"levels": []map[string]interface{}{{"approver_id": "u1"}}},
		testutil.AdminToken())
	if w.Code != http.StatusConflict {
		t.Fatalf("concurrent initiate: expected 409, got %d: %s", w.Code, w.Body.String())
	}

	decide(env, tender.ID, "u1", entity.DecisionReject, "recommendation lacks supporting analysis")

	wf2 := initiateApproval(t, env, tender.ID, "u1", "u2")
	if wf2["cycle"].(float64) != 2 {
		t.Fatalf("expected cycle 2, got %v", wf2["cycle"])
	}

	// 历史保留全部轮次
	w2 := testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/tenders/"+tender.ID+"/approval/history",
		nil, testutil.AdminToken())
	items := testutil.ParseResponse(w2)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 2 {
		t.Fatalf("expected 2 workflow cycles in history, got %d", len(items))
	}
	if items[0].(map[string]interface{})["cycle"].(float64) != 1 {
		t.Fatalf("history should be ordered oldest first")
	}
}

func TestReturnForRevision(t *testing.T) {
	env := testutil.SetupEnv(t)
	tender := seedEvaluatedTender(t, env)
	initiateApproval(t, env, tender.ID, "u1", "u2")

	decide(env, tender.ID, "u1", entity.DecisionApprove, "")
	resp := decide(env, tender.ID, "u2", entity.DecisionReturn, "please re-check the arithmetic on bid two")
	if (*resp)["_status"].(float64) != http.StatusOK {
		t.Fatalf("return: expected 200, got %v: %v", (*resp)["_status"], *resp)
	}
	if (*resp)["data"].(map[string]interface{})["status"] != entity.WorkflowStatusRevisionNeeded {
		t.Fatalf("expected revision_needed")
	}

	// 招标仍处于评标态，可整改后重新发起
	var reloaded entity.Tender
	env.DB.Where("id = ?", tender.ID).First(&reloaded)
	if reloaded.Status != entity.TenderStatusEvaluation {
		t.Fatalf("expected tender still in evaluation, got %s", reloaded.Status)
	}
}
