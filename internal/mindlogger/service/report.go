package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"go.uber.org/zap"
)

// reportClient posts completed submissions to an applet's report server,
// which renders and mails PDF reports.
type reportClient struct {
	httpClient *http.Client
}

func newReportClient(timeout time.Duration) *reportClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &reportClient{httpClient: &http.Client{Timeout: timeout}}
}

type reportResponse struct {
	ActivityID string `json:"activityId"`
	Answer     string `json:"answer"`
}

type reportUser struct {
	SecretID  string `json:"secretId"`
	Nickname  string `json:"nickname"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type reportApplet struct {
	ID         string   `json:"id"`
	Version    string   `json:"version"`
	Name       string   `json:"name"`
	PublicKey  string   `json:"publicKey"`
	Recipients []string `json:"reportRecipients"`
	EmailBody  string   `json:"reportEmailBody"`
}

type reportPayload struct {
	Responses     []reportResponse `json:"responses"`
	UserPublicKey string           `json:"userPublicKey"`
	Now           string           `json:"now"`
	User          reportUser       `json:"user"`
	Applet        reportApplet     `json:"applet"`
}

func reportURL(server, activityID, flowID string) string {
	base := strings.TrimRight(server, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	q := url.Values{}
	q.Set("activityId", activityID)
	q.Set("activityFlowId", flowID)
	return base + "/send-pdf-report?" + q.Encode()
}

func (c *reportClient) send(ctx context.Context, endpoint string, p reportPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("report server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// sendReport forwards the encrypted submission to the applet's report
// server. Failures are logged and never reach the respondent.
func (s *AnswerService) sendReport(ctx context.Context, applet *entity.Applet, answer *entity.Answer, acc *entity.UserAppletAccess, subjectID string) {
	activityID, _, _ := strings.Cut(answer.ActivityHistoryID, "_")
	flowID := ""
	if answer.FlowHistoryID != nil {
		flowID, _, _ = strings.Cut(*answer.FlowHistoryID, "_")
	}

	p := reportPayload{
		Now: s.now().Format(time.RFC3339),
		Applet: reportApplet{
			ID:         applet.ID,
			Version:    answer.Version,
			Name:       applet.DisplayName,
			PublicKey:  applet.Encryption.PublicKey,
			Recipients: applet.ReportRecipients,
			EmailBody:  applet.ReportEmailBody,
		},
	}
	for _, it := range answer.Items {
		p.Responses = append(p.Responses, reportResponse{ActivityID: activityID, Answer: it.Answer})
		p.UserPublicKey = it.UserPublicKey
	}
	if subj, err := s.repos.Subject.FindByID(ctx, subjectID); err == nil {
		p.User = reportUser{SecretID: subj.SecretUserID, FirstName: subj.FirstName, LastName: subj.LastName}
		if subj.Nickname != nil {
			p.User.Nickname = *subj.Nickname
		}
	} else if acc != nil {
		p.User.SecretID = acc.Meta.Data().SecretUserID
	}

	if err := s.report.send(ctx, reportURL(applet.ReportServerIP, activityID, flowID), p); err != nil {
		s.logger.Warn("report server call failed",
			zap.String("applet_id", applet.ID),
			zap.String("answer_id", answer.ID),
			zap.Error(err),
		)
	}
}
