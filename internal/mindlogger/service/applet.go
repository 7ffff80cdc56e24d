package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/apperr"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/changes"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/repository"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/schema"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/crypto"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/database"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/push"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const initialVersion = "1.0.0"

// AppletRequest is the full payload of applet create and update. Activities
// and flows carry a client key unique within the payload; flows reference
// activities by that key. On update, an id matching a current entity keeps
// its identity.
type AppletRequest struct {
	DisplayName         string               `json:"display_name" binding:"required"`
	Description         schema.LocalizedText `json:"description"`
	About               schema.LocalizedText `json:"about"`
	Image               string               `json:"image"`
	WatermarkURL        string               `json:"watermark"`
	ThemeID             *string              `json:"theme_id"`
	ReportServerIP      string               `json:"report_server_ip"`
	ReportPublicKey     string               `json:"report_public_key"`
	ReportRecipients    []string             `json:"report_recipients"`
	ReportIncludeUserID bool                 `json:"report_include_user_id"`
	ReportIncludeCaseID bool                 `json:"report_include_case_id"`
	ReportEmailBody     string               `json:"report_email_body"`
	StreamEnabled       bool                 `json:"stream_enabled"`
	RetentionPeriod     *int                 `json:"retention_period"`
	RetentionType       *string              `json:"retention_type"`
	Encryption          *entity.Encryption   `json:"encryption"`
	Activities          []ActivityRequest    `json:"activities" binding:"required,min=1,dive"`
	ActivityFlows       []FlowRequest        `json:"activity_flows" binding:"dive"`
}

type ActivityRequest struct {
	ID                     *string              `json:"id"`
	Key                    string               `json:"key" binding:"required"`
	Name                   string               `json:"name" binding:"required"`
	Description            schema.LocalizedText `json:"description"`
	Splash                 string               `json:"splash"`
	Image                  string               `json:"image"`
	ShowAllAtOnce          bool                 `json:"show_all_at_once"`
	IsSkippable            bool                 `json:"is_skippable"`
	IsReviewable           bool                 `json:"is_reviewable"`
	IsHidden               bool                 `json:"is_hidden"`
	ResponseIsEditable     bool                 `json:"response_is_editable"`
	ScoresAndReports       json.RawMessage      `json:"scores_and_reports"`
	SubscaleSetting        json.RawMessage      `json:"subscale_setting"`
	ReportIncludedItemName *string              `json:"report_included_item_name"`
	PerformanceTaskType    *string              `json:"performance_task_type"`
	Items                  []ItemRequest        `json:"items" binding:"dive"`
}

type ItemRequest struct {
	ID               *string              `json:"id"`
	Name             string               `json:"name" binding:"required"`
	Question         schema.LocalizedText `json:"question"`
	ResponseType     string               `json:"response_type" binding:"required"`
	ResponseValues   json.RawMessage      `json:"response_values"`
	Config           json.RawMessage      `json:"config"`
	ConditionalLogic json.RawMessage      `json:"conditional_logic"`
	AllowEdit        bool                 `json:"allow_edit"`
	IsHidden         bool                 `json:"is_hidden"`
}

type FlowRequest struct {
	ID                         *string              `json:"id"`
	Key                        string               `json:"key" binding:"required"`
	Name                       string               `json:"name" binding:"required"`
	Description                schema.LocalizedText `json:"description"`
	IsSingleReport             bool                 `json:"is_single_report"`
	HideBadge                  bool                 `json:"hide_badge"`
	IsHidden                   bool                 `json:"is_hidden"`
	ReportIncludedActivityName *string              `json:"report_included_activity_name"`
	ReportIncludedItemName     *string              `json:"report_included_item_name"`
	Items                      []FlowItemRequest    `json:"items" binding:"required,min=1,dive"`
}

type FlowItemRequest struct {
	ID          *string `json:"id"`
	ActivityKey string  `json:"activity_key" binding:"required"`
}

// AppletFull is an applet with its current activities and flows.
type AppletFull struct {
	entity.Applet
	Activities    []entity.Activity `json:"activities"`
	ActivityFlows []entity.Flow     `json:"activity_flows"`
}

// AppletHistoryFull is an applet version with its activity and flow snapshots.
type AppletHistoryFull struct {
	entity.AppletHistory
	Activities    []entity.ActivityHistory `json:"activities"`
	ActivityFlows []entity.FlowHistory     `json:"activity_flows"`
}

type AppletVersion struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	CreatorID string    `json:"creator_id"`
}

// AppletService is the applet version store: every effective change becomes
// a new immutable version in the *_histories tables.
type AppletService struct {
	repos    *repository.Repositories
	access   *AccessService
	schedule *ScheduleService
	notifier push.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewAppletService(d Deps, access *AccessService, schedule *ScheduleService) *AppletService {
	return &AppletService{
		repos:    d.Repos,
		access:   access,
		schedule: schedule,
		notifier: d.Notifier,
		logger:   d.Logger,
		now:      d.Now,
	}
}

// NextVersion bumps the patch component of a MAJOR.MINOR.PATCH version.
func NextVersion(current string) (string, error) {
	if current == "" {
		return initialVersion, nil
	}
	parts := strings.Split(current, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid version %q", current)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return "", fmt.Errorf("invalid version %q", current)
		}
		nums[i] = n
	}
	return fmt.Sprintf("%d.%d.%d", nums[0], nums[1], nums[2]+1), nil
}

// compareVersions orders MAJOR.MINOR.PATCH strings numerically.
func compareVersions(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		x, _ := strconv.Atoi(pa[i])
		y, _ := strconv.Atoi(pb[i])
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return len(pa) - len(pb)
}

// ========== Validation ==========

func validateAppletRequest(req *AppletRequest) error {
	if err := req.Description.Validate(); err != nil {
		return apperr.Validation("INVALID_LOCALIZED_TEXT", "description: %v", err)
	}
	if err := req.About.Validate(); err != nil {
		return apperr.Validation("INVALID_LOCALIZED_TEXT", "about: %v", err)
	}
	if req.RetentionType != nil {
		switch *req.RetentionType {
		case entity.RetentionDays, entity.RetentionWeeks, entity.RetentionMonths, entity.RetentionYears:
		default:
			return apperr.Validation("INVALID_RETENTION", "unknown retention type %q", *req.RetentionType)
		}
		if req.RetentionPeriod == nil || *req.RetentionPeriod <= 0 {
			return apperr.Validation("INVALID_RETENTION", "retention period must be positive")
		}
	}

	keys := make(map[string]struct{}, len(req.Activities)+len(req.ActivityFlows))
	for _, a := range req.Activities {
		if _, dup := keys[a.Key]; dup {
			return apperr.DuplicateActivityKey(a.Key)
		}
		keys[a.Key] = struct{}{}

		if err := a.Description.Validate(); err != nil {
			return apperr.Validation("INVALID_LOCALIZED_TEXT", "activity %s: %v", a.Name, err)
		}
		draft := schema.ActivityDraft{
			Name:             a.Name,
			ScoresAndReports: a.ScoresAndReports,
			SubscaleSetting:  a.SubscaleSetting,
		}
		for _, it := range a.Items {
			if err := it.Question.Validate(); err != nil {
				return apperr.InvalidItem(it.Name, err.Error())
			}
			draft.Items = append(draft.Items, schema.ItemDraft{
				Name:             it.Name,
				ResponseType:     schema.ResponseType(it.ResponseType),
				Config:           it.Config,
				ResponseValues:   it.ResponseValues,
				ConditionalLogic: it.ConditionalLogic,
				IsHidden:         it.IsHidden,
			})
		}
		if err := schema.ValidateActivity(draft); err != nil {
			return err
		}
	}

	activityKeys := make(map[string]struct{}, len(req.Activities))
	for _, a := range req.Activities {
		activityKeys[a.Key] = struct{}{}
	}
	for _, f := range req.ActivityFlows {
		if _, dup := keys[f.Key]; dup {
			return apperr.DuplicateActivityKey(f.Key)
		}
		keys[f.Key] = struct{}{}
		for _, it := range f.Items {
			if _, ok := activityKeys[it.ActivityKey]; !ok {
				return apperr.Validation("INVALID_FLOW_ITEM", "flow %s references unknown activity key %q", f.Name, it.ActivityKey)
			}
		}
	}
	return validateEncryption(req.Encryption)
}

func validateEncryption(e *entity.Encryption) error {
	if e == nil {
		return nil
	}
	p, err := crypto.ParseParams(e.Prime, e.Base)
	if err != nil {
		return apperr.Validation("INVALID_ENCRYPTION", "%v", err)
	}
	pub, err := crypto.ParseByteList(e.PublicKey)
	if err != nil {
		return apperr.Validation("INVALID_ENCRYPTION", "public key: %v", err)
	}
	if _, err := crypto.SharedKey([]byte{1}, pub, p); err != nil {
		return apperr.Validation("INVALID_ENCRYPTION", "public key does not fit the group")
	}
	return nil
}

// ========== Building entities ==========

func jsonOf(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return nil
	}
	return datatypes.JSON(b)
}

func rawJSON(r json.RawMessage) datatypes.JSON {
	r = bytes.TrimSpace(r)
	if len(r) == 0 || string(r) == "null" {
		return nil
	}
	return datatypes.JSON(r)
}

func appletAttrs(req *AppletRequest) entity.AppletAttrs {
	return entity.AppletAttrs{
		DisplayName:         req.DisplayName,
		Description:         jsonOf(req.Description),
		About:               jsonOf(req.About),
		Image:               req.Image,
		WatermarkURL:        req.WatermarkURL,
		ThemeID:             req.ThemeID,
		ReportServerIP:      req.ReportServerIP,
		ReportPublicKey:     req.ReportPublicKey,
		ReportRecipients:    datatypes.JSONSlice[string](req.ReportRecipients),
		ReportIncludeUserID: req.ReportIncludeUserID,
		ReportIncludeCaseID: req.ReportIncludeCaseID,
		ReportEmailBody:     req.ReportEmailBody,
		StreamEnabled:       req.StreamEnabled,
	}
}

// buildChildren turns the request into current rows. existing maps the ids
// of the applet's current activities, items and flows; ids outside it are
// replaced by fresh ones.
func buildChildren(appletID string, req *AppletRequest, existing map[string]bool) ([]entity.Activity, []entity.Flow) {
	keep := func(id *string) string {
		if id != nil && existing[*id] {
			return *id
		}
		return uuid.New().String()
	}

	idByKey := make(map[string]string, len(req.Activities))
	activities := make([]entity.Activity, 0, len(req.Activities))
	for i, a := range req.Activities {
		act := entity.Activity{
			ID:       keep(a.ID),
			AppletID: appletID,
			ActivityAttrs: entity.ActivityAttrs{
				Name:                   a.Name,
				Description:            jsonOf(a.Description),
				Splash:                 a.Splash,
				Image:                  a.Image,
				ShowAllAtOnce:          a.ShowAllAtOnce,
				IsSkippable:            a.IsSkippable,
				IsReviewable:           a.IsReviewable,
				IsHidden:               a.IsHidden,
				ResponseIsEditable:     a.ResponseIsEditable,
				Order:                  i + 1,
				ScoresAndReports:       rawJSON(a.ScoresAndReports),
				SubscaleSetting:        rawJSON(a.SubscaleSetting),
				ReportIncludedItemName: a.ReportIncludedItemName,
				PerformanceTaskType:    a.PerformanceTaskType,
			},
		}
		for j, it := range a.Items {
			act.Items = append(act.Items, entity.ActivityItem{
				ID:         keep(it.ID),
				ActivityID: act.ID,
				ItemAttrs: entity.ItemAttrs{
					Name:             it.Name,
					Question:         jsonOf(it.Question),
					ResponseType:     it.ResponseType,
					ResponseValues:   rawJSON(it.ResponseValues),
					Config:           rawJSON(it.Config),
					ConditionalLogic: rawJSON(it.ConditionalLogic),
					AllowEdit:        it.AllowEdit,
					IsHidden:         it.IsHidden,
					Order:            j + 1,
				},
			})
		}
		idByKey[a.Key] = act.ID
		activities = append(activities, act)
	}

	flows := make([]entity.Flow, 0, len(req.ActivityFlows))
	for i, f := range req.ActivityFlows {
		flow := entity.Flow{
			ID:       keep(f.ID),
			AppletID: appletID,
			FlowAttrs: entity.FlowAttrs{
				Name:                       f.Name,
				Description:                jsonOf(f.Description),
				IsSingleReport:             f.IsSingleReport,
				HideBadge:                  f.HideBadge,
				IsHidden:                   f.IsHidden,
				Order:                      i + 1,
				ReportIncludedActivityName: f.ReportIncludedActivityName,
				ReportIncludedItemName:     f.ReportIncludedItemName,
			},
		}
		for j, it := range f.Items {
			flow.Items = append(flow.Items, entity.FlowItem{
				ID:             keep(it.ID),
				ActivityFlowID: flow.ID,
				ActivityID:     idByKey[it.ActivityKey],
				Order:          j + 1,
			})
		}
		flows = append(flows, flow)
	}
	return activities, flows
}

// snapshotRows freezes the current rows into history rows of version.
func snapshotRows(applet *entity.Applet, activities []entity.Activity, flows []entity.Flow, userID string) (*entity.AppletHistory, []entity.ActivityHistory, []entity.FlowHistory) {
	v := applet.Version
	appletIDV := entity.IDVersion(applet.ID, v)
	h := &entity.AppletHistory{
		IDVersion:   appletIDV,
		ID:          applet.ID,
		AppletAttrs: applet.AppletAttrs,
		UserID:      userID,
	}

	acts := make([]entity.ActivityHistory, 0, len(activities))
	for _, a := range activities {
		ah := entity.ActivityHistory{
			IDVersion:     entity.IDVersion(a.ID, v),
			ID:            a.ID,
			AppletID:      appletIDV,
			ActivityAttrs: a.ActivityAttrs,
		}
		for _, it := range a.Items {
			ah.Items = append(ah.Items, entity.ActivityItemHistory{
				IDVersion:  entity.IDVersion(it.ID, v),
				ID:         it.ID,
				ActivityID: ah.IDVersion,
				ItemAttrs:  it.ItemAttrs,
			})
		}
		acts = append(acts, ah)
	}

	fls := make([]entity.FlowHistory, 0, len(flows))
	for _, f := range flows {
		fh := entity.FlowHistory{
			IDVersion: entity.IDVersion(f.ID, v),
			ID:        f.ID,
			AppletID:  appletIDV,
			FlowAttrs: f.FlowAttrs,
		}
		for _, it := range f.Items {
			fh.Items = append(fh.Items, entity.FlowItemHistory{
				IDVersion:      entity.IDVersion(it.ID, v),
				ID:             it.ID,
				ActivityFlowID: fh.IDVersion,
				ActivityID:     entity.IDVersion(it.ActivityID, v),
				Order:          it.Order,
			})
		}
		fls = append(fls, fh)
	}
	return h, acts, fls
}

type itemShape struct {
	ID    string           `json:"id"`
	Attrs entity.ItemAttrs `json:"attrs"`
}

type activityShape struct {
	ID    string               `json:"id"`
	Attrs entity.ActivityAttrs `json:"attrs"`
	Items []itemShape          `json:"items"`
}

type flowShape struct {
	ID         string           `json:"id"`
	Attrs      entity.FlowAttrs `json:"attrs"`
	Activities []string         `json:"activities"`
}

type appletShape struct {
	Attrs           entity.AppletAttrs `json:"attrs"`
	RetentionPeriod *int               `json:"retention_period"`
	RetentionType   *string            `json:"retention_type"`
	Activities      []activityShape    `json:"activities"`
	Flows           []flowShape        `json:"flows"`
}

// fingerprint renders the versioned content of an applet as canonical JSON,
// so payloads equal to the stored state compare equal whatever the
// database did to key order or whitespace.
func fingerprint(applet *entity.Applet, activities []entity.Activity, flows []entity.Flow) (string, error) {
	sh := appletShape{
		Attrs:           applet.AppletAttrs,
		RetentionPeriod: applet.RetentionPeriod,
		RetentionType:   applet.RetentionType,
	}
	sh.Attrs.Version = ""
	for _, a := range activities {
		as := activityShape{ID: a.ID, Attrs: a.ActivityAttrs}
		for _, it := range a.Items {
			as.Items = append(as.Items, itemShape{ID: it.ID, Attrs: it.ItemAttrs})
		}
		sh.Activities = append(sh.Activities, as)
	}
	for _, f := range flows {
		fs := flowShape{ID: f.ID, Attrs: f.FlowAttrs}
		for _, it := range f.Items {
			fs.Activities = append(fs.Activities, it.ActivityID)
		}
		sh.Flows = append(sh.Flows, fs)
	}
	b, err := json.Marshal(sh)
	if err != nil {
		return "", err
	}
	var generic interface{}
	if err := json.Unmarshal(b, &generic); err != nil {
		return "", err
	}
	b, err = json.Marshal(generic)
	return string(b), err
}

// ========== Commands ==========

// Create stores a new applet at version 1.0.0 owned by the caller, with a
// default schedule for every activity and flow.
func (s *AppletService) Create(ctx context.Context, userID string, req *AppletRequest) (*AppletFull, error) {
	if err := validateAppletRequest(req); err != nil {
		return nil, err
	}

	applet := &entity.Applet{
		ID:              uuid.New().String(),
		AppletAttrs:     appletAttrs(req),
		RetentionPeriod: req.RetentionPeriod,
		RetentionType:   req.RetentionType,
	}
	applet.Version = initialVersion
	if req.Encryption != nil {
		applet.Encryption = *req.Encryption
	}
	activities, flows := buildChildren(applet.ID, req, nil)

	err := database.Atomic(ctx, s.repos.DB(), func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)
		if err := repos.Applet.Create(ctx, applet); err != nil {
			return fmt.Errorf("create applet: %w", err)
		}
		if err := repos.Applet.ReplaceChildren(ctx, applet.ID, activities, flows); err != nil {
			return fmt.Errorf("create applet children: %w", err)
		}
		h, acts, fls := snapshotRows(applet, activities, flows, userID)
		if err := repos.Applet.CreateHistory(ctx, h, acts, fls); err != nil {
			return fmt.Errorf("create applet history: %w", err)
		}
		if _, err := AddRole(ctx, repos, Grant{AppletID: applet.ID, UserID: userID, Role: entity.RoleOwner}); err != nil {
			return err
		}
		for _, ref := range entityRefs(activities, flows) {
			if _, err := s.schedule.createDefault(ctx, repos, applet.ID, ref, nil, userID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("applet created", zap.String("applet_id", applet.ID), zap.String("user_id", userID))
	return s.full(ctx, applet)
}

// Update applies a full applet payload. A payload equal to the stored state
// keeps the version; any other change bumps the patch version and snapshots
// the result.
func (s *AppletService) Update(ctx context.Context, userID, appletID string, req *AppletRequest) (*AppletFull, error) {
	applet, err := s.repos.Applet.FindByID(ctx, appletID)
	if err != nil {
		return nil, appletLookup(appletID, err)
	}
	if _, err := s.access.Require(ctx, userID, appletID, EditorRoles...); err != nil {
		return nil, err
	}
	if err := validateAppletRequest(req); err != nil {
		return nil, err
	}
	if req.Encryption != nil && applet.Encryption.IsSet() && *req.Encryption != applet.Encryption {
		return nil, apperr.Conflict("ENCRYPTION_ALREADY_SET", "applet encryption cannot be changed")
	}

	curActs, err := s.repos.Applet.ListActivities(ctx, appletID)
	if err != nil {
		return nil, err
	}
	curFlows, err := s.repos.Applet.ListFlows(ctx, appletID)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool)
	for _, a := range curActs {
		existing[a.ID] = true
		for _, it := range a.Items {
			existing[it.ID] = true
		}
	}
	for _, f := range curFlows {
		existing[f.ID] = true
		for _, it := range f.Items {
			existing[it.ID] = true
		}
	}

	next := *applet
	next.AppletAttrs = appletAttrs(req)
	next.Version = applet.Version
	next.Encryption = applet.Encryption
	if req.Encryption != nil && !applet.Encryption.IsSet() {
		next.Encryption = *req.Encryption
	}
	next.RetentionPeriod = req.RetentionPeriod
	next.RetentionType = req.RetentionType
	activities, flows := buildChildren(appletID, req, existing)

	before, err := fingerprint(applet, curActs, curFlows)
	if err != nil {
		return nil, err
	}
	after, err := fingerprint(&next, activities, flows)
	if err != nil {
		return nil, err
	}
	if before == after {
		return s.full(ctx, applet)
	}

	if next.Version, err = NextVersion(applet.Version); err != nil {
		return nil, apperr.Fatal("INVALID_VERSION", "%v", err)
	}

	oldRefs := entityRefs(curActs, curFlows)
	newRefs := entityRefs(activities, flows)
	err = database.Atomic(ctx, s.repos.DB(), func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)
		if err := repos.Applet.Save(ctx, &next); err != nil {
			return fmt.Errorf("save applet: %w", err)
		}
		if err := repos.Applet.ReplaceChildren(ctx, appletID, activities, flows); err != nil {
			return fmt.Errorf("replace applet children: %w", err)
		}
		h, acts, fls := snapshotRows(&next, activities, flows, userID)
		if err := repos.Applet.CreateHistory(ctx, h, acts, fls); err != nil {
			return fmt.Errorf("create applet history: %w", err)
		}
		return s.schedule.syncEntities(ctx, repos, appletID, oldRefs, newRefs, userID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("applet updated",
		zap.String("applet_id", appletID),
		zap.String("version", next.Version),
		zap.String("user_id", userID))
	s.notifyRespondents(ctx, appletID, push.KindAppletUpdated, next.DisplayName, "Applet was updated")
	return s.full(ctx, &next)
}

func (s *AppletService) notifyRespondents(ctx context.Context, appletID, kind, title, body string) {
	if s.notifier == nil {
		return
	}
	ids, err := s.access.RespondentIDs(ctx, appletID)
	if err != nil {
		s.logger.Warn("list respondents for notification", zap.String("applet_id", appletID), zap.Error(err))
		return
	}
	_ = s.notifier.Notify(ctx, push.Notification{AppletID: appletID, Title: title, Body: body, Kind: kind, UserIDs: ids})
}

type EncryptionRequest struct {
	PublicKey string `json:"public_key" binding:"required"`
	Prime     string `json:"prime" binding:"required"`
	Base      string `json:"base" binding:"required"`
	AccountID string `json:"account_id"`
}

// SetEncryption stores the applet's encryption parameters. They can be set
// once.
func (s *AppletService) SetEncryption(ctx context.Context, userID, appletID string, req *EncryptionRequest) (*entity.Applet, error) {
	applet, err := s.repos.Applet.FindByID(ctx, appletID)
	if err != nil {
		return nil, appletLookup(appletID, err)
	}
	if _, err := s.access.Require(ctx, userID, appletID, entity.RoleOwner); err != nil {
		return nil, err
	}
	if applet.Encryption.IsSet() {
		return nil, apperr.Conflict("ENCRYPTION_ALREADY_SET", "applet encryption is already set")
	}
	enc := entity.Encryption{PublicKey: req.PublicKey, Prime: req.Prime, Base: req.Base, AccountID: req.AccountID}
	if err := validateEncryption(&enc); err != nil {
		return nil, err
	}
	applet.Encryption = enc
	if err := s.repos.Applet.Save(ctx, applet); err != nil {
		return nil, err
	}
	return applet, nil
}

type LinkRequest struct {
	RequireLogin bool `json:"require_login"`
}

// CreateLink publishes the applet under a public link.
func (s *AppletService) CreateLink(ctx context.Context, userID, appletID string, req *LinkRequest) (*entity.Applet, error) {
	applet, err := s.repos.Applet.FindByID(ctx, appletID)
	if err != nil {
		return nil, appletLookup(appletID, err)
	}
	if _, err := s.access.Require(ctx, userID, appletID, AdminRoles...); err != nil {
		return nil, err
	}
	if applet.Link != nil {
		return nil, apperr.Conflict("APPLET_LINK_EXISTS", "applet already has a public link")
	}
	link := uuid.New().String()
	applet.Link = &link
	applet.RequireLogin = req.RequireLogin
	if err := s.repos.Applet.Save(ctx, applet); err != nil {
		return nil, err
	}
	return applet, nil
}

func (s *AppletService) DeleteLink(ctx context.Context, userID, appletID string) error {
	applet, err := s.repos.Applet.FindByID(ctx, appletID)
	if err != nil {
		return appletLookup(appletID, err)
	}
	if _, err := s.access.Require(ctx, userID, appletID, AdminRoles...); err != nil {
		return err
	}
	applet.Link = nil
	applet.RequireLogin = false
	return s.repos.Applet.Save(ctx, applet)
}

// Delete soft-deletes the applet and its events. Histories and answers stay.
func (s *AppletService) Delete(ctx context.Context, userID, appletID string) error {
	applet, err := s.repos.Applet.FindByID(ctx, appletID)
	if err != nil {
		return appletLookup(appletID, err)
	}
	if _, err := s.access.Require(ctx, userID, appletID, entity.RoleOwner); err != nil {
		return err
	}
	respondents, err := s.access.RespondentIDs(ctx, appletID)
	if err != nil {
		return err
	}
	err = database.Atomic(ctx, s.repos.DB(), func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)
		events, err := repos.Event.ListByApplet(ctx, appletID)
		if err != nil {
			return err
		}
		if err := s.schedule.deleteEvents(ctx, repos, events, userID); err != nil {
			return err
		}
		return repos.Applet.SoftDelete(ctx, appletID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("applet deleted", zap.String("applet_id", appletID), zap.String("user_id", userID))
	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, push.Notification{
			AppletID: appletID, Title: applet.DisplayName, Body: "Applet was deleted",
			Kind: push.KindAppletDeleted, UserIDs: respondents,
		})
	}
	return nil
}

// ========== Queries ==========

func (s *AppletService) full(ctx context.Context, applet *entity.Applet) (*AppletFull, error) {
	acts, err := s.repos.Applet.ListActivities(ctx, applet.ID)
	if err != nil {
		return nil, err
	}
	flows, err := s.repos.Applet.ListFlows(ctx, applet.ID)
	if err != nil {
		return nil, err
	}
	return &AppletFull{Applet: *applet, Activities: acts, ActivityFlows: flows}, nil
}

// GetFull returns the current applet with its activities and flows.
func (s *AppletService) GetFull(ctx context.Context, userID, appletID string) (*AppletFull, error) {
	applet, err := s.repos.Applet.FindByID(ctx, appletID)
	if err != nil {
		return nil, appletLookup(appletID, err)
	}
	if _, err := s.access.Require(ctx, userID, appletID, AnyRole...); err != nil {
		return nil, err
	}
	return s.full(ctx, applet)
}

// GetByLink resolves a public link. Links requiring login need a user.
func (s *AppletService) GetByLink(ctx context.Context, userID, link string) (*AppletFull, error) {
	applet, err := s.repos.Applet.FindByLink(ctx, link)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("APPLET_LINK_NOT_FOUND", "no applet published under this link")
		}
		return nil, err
	}
	if applet.RequireLogin && userID == "" {
		return nil, apperr.AccessDenied("LOGIN_REQUIRED", "this applet link requires login")
	}
	return s.full(ctx, applet)
}

// List returns the applets where the user holds any role.
func (s *AppletService) List(ctx context.Context, userID string) ([]entity.Applet, error) {
	ids, err := s.repos.Access.AppletIDsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	applets, err := s.repos.Applet.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(applets, func(i, j int) bool { return applets[i].DisplayName < applets[j].DisplayName })
	return applets, nil
}

func (s *AppletService) loadHistory(ctx context.Context, appletID, version string) (*AppletHistoryFull, error) {
	h, err := s.repos.Applet.FindHistory(ctx, entity.IDVersion(appletID, version))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.AppletVersionNotFound(appletID, version)
		}
		return nil, err
	}
	acts, err := s.repos.Applet.ListActivityHistories(ctx, h.IDVersion)
	if err != nil {
		return nil, err
	}
	flows, err := s.repos.Applet.ListFlowHistories(ctx, h.IDVersion)
	if err != nil {
		return nil, err
	}
	return &AppletHistoryFull{AppletHistory: *h, Activities: acts, ActivityFlows: flows}, nil
}

// GetHistory returns the applet exactly as it was at version.
func (s *AppletService) GetHistory(ctx context.Context, userID, appletID, version string) (*AppletHistoryFull, error) {
	if _, err := s.repos.Applet.FindByIDUnscoped(ctx, appletID); err != nil {
		return nil, appletLookup(appletID, err)
	}
	if _, err := s.access.Require(ctx, userID, appletID, AnyRole...); err != nil {
		return nil, err
	}
	return s.loadHistory(ctx, appletID, version)
}

func (s *AppletService) sortedHistories(ctx context.Context, appletID string) ([]entity.AppletHistory, error) {
	hs, err := s.repos.Applet.ListHistories(ctx, appletID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(hs, func(i, j int) bool { return compareVersions(hs[i].Version, hs[j].Version) < 0 })
	return hs, nil
}

// Versions lists every version of the applet, oldest first.
func (s *AppletService) Versions(ctx context.Context, userID, appletID string) ([]AppletVersion, error) {
	if _, err := s.repos.Applet.FindByIDUnscoped(ctx, appletID); err != nil {
		return nil, appletLookup(appletID, err)
	}
	if _, err := s.access.Require(ctx, userID, appletID, EditorRoles...); err != nil {
		return nil, err
	}
	hs, err := s.sortedHistories(ctx, appletID)
	if err != nil {
		return nil, err
	}
	out := make([]AppletVersion, 0, len(hs))
	for _, h := range hs {
		out = append(out, AppletVersion{Version: h.Version, CreatedAt: h.CreatedAt, CreatorID: h.UserID})
	}
	return out, nil
}

// Changes describes what version changed compared to the one before it.
func (s *AppletService) Changes(ctx context.Context, userID, appletID, version string) (*changes.AppletChange, error) {
	if _, err := s.repos.Applet.FindByIDUnscoped(ctx, appletID); err != nil {
		return nil, appletLookup(appletID, err)
	}
	if _, err := s.access.Require(ctx, userID, appletID, EditorRoles...); err != nil {
		return nil, err
	}
	hs, err := s.sortedHistories(ctx, appletID)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, h := range hs {
		if h.Version == version {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, apperr.AppletVersionNotFound(appletID, version)
	}

	next, err := s.loadHistory(ctx, appletID, version)
	if err != nil {
		return nil, err
	}
	var prev *changes.Snapshot
	if idx > 0 {
		p, err := s.loadHistory(ctx, appletID, hs[idx-1].Version)
		if err != nil {
			return nil, err
		}
		prev = &changes.Snapshot{Applet: p.AppletHistory, Activities: p.Activities, Flows: p.ActivityFlows}
	}
	return changes.Compare(prev, &changes.Snapshot{
		Applet:     next.AppletHistory,
		Activities: next.Activities,
		Flows:      next.ActivityFlows,
	}), nil
}
