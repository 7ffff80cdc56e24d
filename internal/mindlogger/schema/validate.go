package schema

import (
	"encoding/json"
	"fmt"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/apperr"
)

// ItemDraft is the raw, not yet persisted form of an item.
type ItemDraft struct {
	Name             string
	ResponseType     ResponseType
	Config           json.RawMessage
	ResponseValues   json.RawMessage
	ConditionalLogic json.RawMessage
	IsHidden         bool
}

// ActivityDraft groups the items of one activity with its report settings.
type ActivityDraft struct {
	Name             string
	Items            []ItemDraft
	ScoresAndReports json.RawMessage
	SubscaleSetting  json.RawMessage
}

type activityIndex struct {
	name  string
	items map[string]*Item
}

// ValidateActivity checks every cross-reference inside an activity and returns
// the first violation as an *apperr.Error.
func ValidateActivity(a ActivityDraft) error {
	idx := activityIndex{name: a.Name, items: make(map[string]*Item, len(a.Items))}
	for _, d := range a.Items {
		if _, dup := idx.items[d.Name]; dup {
			return apperr.DuplicateItemName(a.Name, d.Name)
		}
		item, err := Decode(d.ResponseType, d.Config, d.ResponseValues)
		if err != nil {
			return apperr.InvalidItem(d.Name, err.Error())
		}
		idx.items[d.Name] = item
	}
	for _, d := range a.Items {
		if err := idx.checkItemLogic(d); err != nil {
			return err
		}
		if d.ResponseType == PhrasalTemplate {
			pt := idx.items[d.Name].Values.(*PhrasalTemplateValues)
			for _, ref := range pt.ItemRefs() {
				if _, ok := idx.items[ref]; !ok {
					return apperr.InvalidItem(d.Name, fmt.Sprintf("phrase references unknown item %q", ref))
				}
			}
		}
	}

	sr, err := ParseScoresAndReports(a.ScoresAndReports)
	if err != nil {
		return apperr.InvalidScoreItem("", err.Error())
	}
	if sr != nil {
		if err := idx.checkReports(sr); err != nil {
			return err
		}
	}

	ss, err := ParseSubscaleSetting(a.SubscaleSetting)
	if err != nil {
		return apperr.InvalidSubscaleItem("", err.Error())
	}
	if ss != nil {
		if err := idx.checkSubscales(ss); err != nil {
			return err
		}
	}
	return nil
}

func (idx activityIndex) checkItemLogic(d ItemDraft) error {
	cl, err := ParseConditionalLogic(d.ConditionalLogic)
	if err != nil {
		return apperr.InvalidConditionalLogic(d.Name, err.Error())
	}
	if cl == nil {
		return nil
	}
	if d.IsHidden {
		return apperr.InvalidConditionalLogic(d.Name, "a hidden item cannot carry conditional logic")
	}
	if err := cl.checkMatch(); err != nil {
		return apperr.InvalidConditionalLogic(d.Name, err.Error())
	}
	for _, c := range cl.Conditions {
		if c.ItemName == d.Name {
			return apperr.InvalidConditionalLogic(d.Name, "an item cannot depend on itself")
		}
		src, ok := idx.items[c.ItemName]
		if !ok {
			return apperr.InvalidConditionalLogic(d.Name, fmt.Sprintf("item %q is not in activity %q", c.ItemName, idx.name))
		}
		if err := checkCondition(c, src); err != nil {
			return apperr.InvalidConditionalLogic(d.Name, err.Error())
		}
	}
	return nil
}

func (idx activityIndex) checkPrint(names []string) error {
	for _, n := range names {
		item, ok := idx.items[n]
		if !ok {
			return apperr.InvalidScoreItem(n, "item is not in activity "+idx.name)
		}
		if item.Type == TimeRange {
			return apperr.InvalidScoreItem(n, "timeRange items cannot be printed")
		}
	}
	return nil
}

func (idx activityIndex) checkScoreSource(n string) error {
	item, ok := idx.items[n]
	if !ok {
		return apperr.InvalidScoreItem(n, "item is not in activity "+idx.name)
	}
	if !item.Type.Scorable() {
		return apperr.InvalidScoreItem(n, fmt.Sprintf("%s items cannot be scored", item.Type))
	}
	if !item.Config.Base().AddScores {
		return apperr.InvalidScoreItem(n, "add_scores is not enabled")
	}
	return nil
}

func (idx activityIndex) checkReports(sr *ScoresAndReports) error {
	scoreIDs := make(map[string]struct{})
	for _, r := range sr.Reports {
		if r.Type == ReportScore && r.ID != "" {
			scoreIDs[r.ID] = struct{}{}
		}
	}
	for _, r := range sr.Reports {
		if err := idx.checkPrint(r.ItemsPrint); err != nil {
			return err
		}
		switch r.Type {
		case ReportScore:
			for _, n := range r.ItemsScore {
				if err := idx.checkScoreSource(n); err != nil {
					return err
				}
			}
			for _, l := range r.ScoreLogic {
				if err := idx.checkPrint(l.ItemsPrint); err != nil {
					return err
				}
				for _, c := range l.Conditions {
					if c.ItemName != r.ID {
						return apperr.InvalidScoreItem(c.ItemName, fmt.Sprintf("score condition must reference score %q", r.ID))
					}
				}
			}
		case ReportSection:
			if r.SectionLogic == nil {
				continue
			}
			for _, c := range r.SectionLogic.Conditions {
				if _, isScore := scoreIDs[c.ItemName]; isScore {
					continue
				}
				src, ok := idx.items[c.ItemName]
				if !ok {
					return apperr.InvalidScoreItem(c.ItemName, "section condition references neither an item nor a score")
				}
				if err := checkCondition(c, src); err != nil {
					return apperr.InvalidScoreItem(c.ItemName, err.Error())
				}
			}
		default:
			return apperr.InvalidScoreItem(r.Name, fmt.Sprintf("unknown report type %q", r.Type))
		}
	}
	return nil
}

func (idx activityIndex) checkSubscales(ss *SubscaleSetting) error {
	names := make(map[string]struct{}, len(ss.Subscales))
	for _, s := range ss.Subscales {
		if _, dup := names[s.Name]; dup {
			return apperr.InvalidSubscaleItem(s.Name, "subscale name is used more than once")
		}
		names[s.Name] = struct{}{}
	}
	for _, s := range ss.Subscales {
		for _, si := range s.Items {
			switch si.Type {
			case SubscaleItemSubscale:
				if _, ok := names[si.Name]; !ok || si.Name == s.Name {
					return apperr.InvalidSubscaleItem(si.Name, "must reference another subscale, not an item")
				}
			case SubscaleItemItem, "":
				item, ok := idx.items[si.Name]
				if !ok {
					return apperr.InvalidSubscaleItem(si.Name, "item is not in activity "+idx.name)
				}
				if !item.Type.Scorable() || !item.Config.Base().AddScores {
					return apperr.InvalidSubscaleItem(si.Name, "subscale sources need add_scores")
				}
			default:
				return apperr.InvalidSubscaleItem(si.Name, fmt.Sprintf("unknown subscale item type %q", si.Type))
			}
		}
	}
	return nil
}
