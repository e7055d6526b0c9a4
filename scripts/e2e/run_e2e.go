// Package main runs end-to-end scenarios against a running crisos API.
//
// Scenarios cover:
//   - Trapped caller with a critical injury (high risk, operator claim and reply)
//   - Emergency interview that ends low risk
//   - Operator request in the middle of an interview
//   - User leaving the handoff chat and coming back
//   - Safe user
//
// Usage:
//
//	API_BASE_URL=... E2E_OPERATOR_USERNAME=... E2E_OPERATOR_PASSWORD=... go run scripts/e2e/run_e2e.go [scenario-name]
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go                 # runs all
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go trapped-critical # runs one
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var (
	apiBase  string
	username string
	password string
	token    string
	client   = &http.Client{Timeout: 15 * time.Second}
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type turnResult struct {
	Flow      string   `json:"flow"`
	Messages  []string `json:"messages"`
	Required  []string `json:"required"`
	Escalated bool     `json:"escalated"`
	RequestID *int64   `json:"request_id"`
	Risk      struct {
		Score int    `json:"score"`
		Level string `json:"level"`
	} `json:"risk"`
}

type handoffRequest struct {
	ID         int64   `json:"id"`
	Status     string  `json:"status"`
	RiskScore  *int    `json:"risk_score"`
	AssignedTo *string `json:"assigned_to"`
}

type chatMessage struct {
	ID     int64  `json:"id"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

func do(method, path, bearer string, payload any, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, apiBase+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w (%s)", method, path, err, string(raw))
		}
	}
	return resp.StatusCode, nil
}

func newConversationID(name string) string {
	return fmt.Sprintf("e2e-%s-%d", name, time.Now().UnixNano())
}

func turn(convID string, input map[string]any) (*turnResult, error) {
	var out turnResult
	status, err := do(http.MethodPost, "/api/conversations/"+convID+"/turns", "", input, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return &out, fmt.Errorf("turn returned %d", status)
	}
	return &out, nil
}

func active(convID string) (*handoffRequest, error) {
	var out struct {
		Request *handoffRequest `json:"request"`
	}
	if _, err := do(http.MethodGet, "/api/handoff/requests/active?conversation_id="+convID, "", nil, &out); err != nil {
		return nil, err
	}
	return out.Request, nil
}

func messages(requestID int64) ([]chatMessage, error) {
	var out struct {
		Messages []chatMessage `json:"messages"`
	}
	_, err := do(http.MethodGet, fmt.Sprintf("/api/handoff/messages?request_id=%d&after_id=0", requestID), "", nil, &out)
	return out.Messages, err
}

func login() (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	status, err := do(http.MethodPost, "/api/admin/login", "", map[string]string{"username": username, "password": password}, &out)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK || out.Token == "" {
		return "", fmt.Errorf("login returned %d", status)
	}
	return out.Token, nil
}

func hasText(msgs []chatMessage, sender, text string) bool {
	for _, m := range msgs {
		if m.Sender == sender && m.Text == text {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func scenarioTrappedCritical(t *T) {
	convID := newConversationID("trapped")
	res, err := turn(convID, map[string]any{
		"intent": "report_trapped",
		"facts":  map[string]string{"need_medical": "critical", "location": "Valencia"},
		"text":   "we are on the roof and my father is unconscious",
	})
	if err != nil {
		t.fatalf("turn: %v", err)
		return
	}
	t.check("flow is trapped", res.Flow == "trapped")
	t.check("risk is high", res.Risk.Level == "high")
	t.check("escalated", res.Escalated && res.RequestID != nil)
	if res.RequestID == nil {
		return
	}
	id := *res.RequestID

	if token == "" {
		fmt.Println("    SKIP: operator steps (no operator credentials)")
		return
	}
	var claim map[string]any
	status, err := do(http.MethodPost, fmt.Sprintf("/api/admin/handoff/requests/%d/claim", id), token, nil, &claim)
	if err != nil {
		t.fatalf("claim: %v", err)
		return
	}
	t.check("claim succeeds", status == http.StatusOK && claim["claimed"] == true)

	reply := "Rescue team dispatched, stay on the roof."
	status, err = do(http.MethodPost, "/api/admin/handoff/messages", token, map[string]any{
		"request_id": id, "sender": "agent", "text": reply,
	}, nil)
	t.check("agent reply accepted", err == nil && status == http.StatusOK)

	msgs, err := messages(id)
	t.check("user sees agent reply", err == nil && hasText(msgs, "agent", reply))
}

func scenarioLowRisk(t *T) {
	convID := newConversationID("low")
	if _, err := turn(convID, map[string]any{"intent": "report_emergency"}); err != nil {
		t.fatalf("turn: %v", err)
		return
	}
	res, err := turn(convID, map[string]any{
		"facts": map[string]string{"need_medical": "none", "location": "Athens", "person_count": "2"},
	})
	if err != nil {
		t.fatalf("turn: %v", err)
		return
	}
	t.check("interview complete", len(res.Required) == 0)
	t.check("risk is low", res.Risk.Level == "low")
	t.check("not escalated", !res.Escalated)

	req, err := active(convID)
	t.check("no handoff request", err == nil && req == nil)
}

func scenarioOperatorRequest(t *T) {
	convID := newConversationID("request")
	if _, err := turn(convID, map[string]any{"intent": "report_trapped"}); err != nil {
		t.fatalf("turn: %v", err)
		return
	}
	res, err := turn(convID, map[string]any{"intent": "request_operator", "text": "I need a human"})
	if err != nil {
		t.fatalf("turn: %v", err)
		return
	}
	t.check("escalated", res.Escalated)

	req, err := active(convID)
	if err != nil || req == nil {
		t.fatalf("active request missing: %v", err)
		return
	}
	t.check("request is open", req.Status == "open")
	t.check("risk is unscored", req.RiskScore == nil)
}

func scenarioLeaveAndReturn(t *T) {
	convID := newConversationID("leave")
	res, err := turn(convID, map[string]any{"intent": "request_operator"})
	if err != nil || res.RequestID == nil {
		t.fatalf("escalation failed: %v", err)
		return
	}
	id := *res.RequestID

	status, err := do(http.MethodPost, "/api/handoff/messages", "", map[string]any{
		"request_id": id, "sender": "user", "text": "/leave",
	}, nil)
	t.check("leave accepted", err == nil && status == http.StatusOK)

	req, err := active(convID)
	t.check("no active request after leave", err == nil && req == nil)

	status, err = do(http.MethodPost, fmt.Sprintf("/api/handoff/requests/%d/status", id), "", map[string]any{
		"status": "open", "suppress_close_message": true,
	}, nil)
	t.check("silent reopen accepted", err == nil && status == http.StatusOK)

	req, err = active(convID)
	t.check("request active again", err == nil && req != nil && req.ID == id)
}

func scenarioSafe(t *T) {
	res, err := turn(newConversationID("safe"), map[string]any{"intent": "report_safe", "text": "we are fine"})
	if err != nil {
		t.fatalf("turn: %v", err)
		return
	}
	t.check("flow is none", res.Flow == "none")
	t.check("not escalated", !res.Escalated)
}

func main() {
	apiBase = os.Getenv("API_BASE_URL")
	if apiBase == "" {
		fmt.Fprintln(os.Stderr, "ERROR: API_BASE_URL required")
		os.Exit(1)
	}
	username = os.Getenv("E2E_OPERATOR_USERNAME")
	password = os.Getenv("E2E_OPERATOR_PASSWORD")
	if username != "" && password != "" {
		var err error
		if token, err = login(); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: operator login: %v\n", err)
			os.Exit(1)
		}
	}

	scenarios := []scenario{
		{"trapped-critical", scenarioTrappedCritical},
		{"low-risk", scenarioLowRisk},
		{"operator-request", scenarioOperatorRequest},
		{"leave-and-return", scenarioLeaveAndReturn},
		{"safe", scenarioSafe},
	}

	// Filter by name if argument provided
	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed := 0
	totalFailed := 0
	scenarioResults := make([]string, 0)

	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}

		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name}
		s.Fn(t)

		totalPassed += t.passed
		totalFailed += t.failed

		status := "PASS"
		if t.failed > 0 {
			status = "FAIL"
		}
		scenarioResults = append(scenarioResults, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Printf("SUMMARY\n")
	fmt.Printf("========================================\n")
	for _, line := range scenarioResults {
		fmt.Println(line)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)
	if totalFailed > 0 {
		os.Exit(1)
	}
}
