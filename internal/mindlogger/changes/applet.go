package changes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
)

// Snapshot is one applet version with its child history rows.
type Snapshot struct {
	Applet     entity.AppletHistory
	Activities []entity.ActivityHistory
	Flows      []entity.FlowHistory
}

type EntityChange struct {
	Name    string         `json:"name"`
	Changes []string       `json:"changes,omitempty"`
	Items   []EntityChange `json:"items,omitempty"`
}

type AppletChange struct {
	DisplayName   string         `json:"display_name"`
	Version       string         `json:"version"`
	Changes       []string       `json:"changes"`
	Activities    []EntityChange `json:"activities"`
	ActivityFlows []EntityChange `json:"activity_flows"`
}

// Empty reports whether nothing differs between the two versions.
func (c *AppletChange) Empty() bool {
	return len(c.Changes) == 0 && len(c.Activities) == 0 && len(c.ActivityFlows) == 0
}

var appletFields = NewGenerator(
	Field{Key: "display_name", Verbose: "Applet Name"},
	Field{Key: "description", Verbose: "Applet Description", Diff: Localized},
	Field{Key: "about", Verbose: "About Applet Page", Diff: Localized},
	Field{Key: "image", Verbose: "Applet Image"},
	Field{Key: "watermark", Verbose: "Applet Watermark"},
	Field{Key: "theme_id", Verbose: "Applet Theme"},
	Field{Key: "report_server_ip", Verbose: "Report Server IP"},
	Field{Key: "report_public_key", Verbose: "Report Public Key"},
	Field{Key: "report_recipients", Verbose: "Report Recipients", Diff: Structured},
	Field{Key: "report_include_user_id", Verbose: "Include Respondent ID in Report"},
	Field{Key: "report_include_case_id", Verbose: "Include Case ID in Report"},
	Field{Key: "report_email_body", Verbose: "Report Email Body"},
	Field{Key: "stream_enabled", Verbose: "Streaming"},
)

var activityFields = NewGenerator(
	Field{Key: "name", Verbose: "Activity Name"},
	Field{Key: "description", Verbose: "Activity Description", Diff: Localized},
	Field{Key: "splash", Verbose: "Splash Screen"},
	Field{Key: "image", Verbose: "Activity Image"},
	Field{Key: "show_all_at_once", Verbose: "Show All Questions at Once"},
	Field{Key: "is_skippable", Verbose: "Allow to Skip All Items"},
	Field{Key: "is_reviewable", Verbose: "Turn the Activity to the Reviewer Dashboard Assessment"},
	Field{Key: "is_hidden", Verbose: "Activity Visibility", Inverted: true},
	Field{Key: "response_is_editable", Verbose: "Disable the respondent's ability to change the response", Inverted: true},
	Field{Key: "order", Verbose: "Activity Order"},
	Field{Key: "report_included_item_name", Verbose: "Report Included Item"},
	Field{Key: "scores_and_reports", Verbose: "Scores & Reports", Diff: scoresAndReports},
	Field{Key: "subscale_setting", Verbose: "Subscale Setting", Diff: subscaleSetting},
)

var itemFields = NewGenerator(
	Field{Key: "name", Verbose: "Item Name"},
	Field{Key: "question", Verbose: "Displayed Content", Diff: Localized},
	Field{Key: "response_type", Verbose: "Item Type"},
	Field{Key: "response_values", Verbose: "Response Values", Diff: responseValues},
	Field{Key: "config", Verbose: "Item Settings", Diff: config},
	Field{Key: "conditional_logic", Verbose: "Item Conditional Logic", Diff: Structured},
	Field{Key: "allow_edit", Verbose: "Allow Edit"},
	Field{Key: "is_hidden", Verbose: "Item Visibility", Inverted: true},
	Field{Key: "order", Verbose: "Item Order"},
)

var flowFields = NewGenerator(
	Field{Key: "name", Verbose: "Activity Flow Name"},
	Field{Key: "description", Verbose: "Activity Flow Description", Diff: Localized},
	Field{Key: "is_single_report", Verbose: "Combine Reports into a Single File"},
	Field{Key: "hide_badge", Verbose: "Hide Badge"},
	Field{Key: "is_hidden", Verbose: "Activity Flow Visibility", Inverted: true},
	Field{Key: "order", Verbose: "Activity Flow Order"},
	Field{Key: "report_included_activity_name", Verbose: "Report Included Activity"},
	Field{Key: "report_included_item_name", Verbose: "Report Included Item"},
)

var configNames = map[string]string{
	"remove_back_button":                             "Remove Back Button",
	"skippable_item":                                 "Skippable Item",
	"timer":                                          "Timer",
	"add_scores":                                     "Add Scores",
	"set_alerts":                                     "Set Alerts",
	"randomize_options":                              "Randomize Response Options",
	"add_tooltip":                                    "Add Tooltips",
	"set_palette":                                    "Set Color Palette",
	"additional_response_option.text_input_option":   "Add Text Input Option",
	"additional_response_option.text_input_required": "Input Required",
	"response_data_identifier":                       "Response Data Identifier",
	"max_response_length":                            "Max Response Length",
	"correct_answer_required":                        "Correct Answer Required",
	"correct_answer":                                 "Correct Answer",
	"numerical_response_required":                    "Numerical Response Required",
	"show_tick_marks":                                "Show Tick Marks",
	"show_tick_labels":                               "Show Tick Labels",
	"continuous_slider":                              "Use Continuous Slider",
	"play_once":                                      "Play Once",
}

func config(_ string, o, n json.RawMessage) []string {
	om := map[string]json.RawMessage{}
	nm := map[string]json.RawMessage{}
	flatten("", o, om)
	flatten("", n, nm)
	keys := map[string]struct{}{}
	for k := range om {
		keys[k] = struct{}{}
	}
	for k := range nm {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	var out []string
	for _, k := range sorted {
		ov, nv := normalize(om[k]), normalize(nm[k])
		if bytes.Equal(ov, nv) {
			continue
		}
		name, ok := configNames[k]
		if !ok {
			name = humanize(k)
		}
		out = append(out, scalarChange(Field{Verbose: name}, ov, nv)...)
	}
	return out
}

func responseValues(verbose string, o, n json.RawMessage) []string {
	var out []string
	out = append(out, diffKeyed("Option", rows(objectField(o, "options"), "id", "text"), rows(objectField(n, "options"), "id", "text"))...)
	out = append(out, diffKeyed("Row", rows(objectField(o, "rows"), "id", "row_name", "label"), rows(objectField(n, "rows"), "id", "row_name", "label"))...)
	for _, k := range []string{"min_value", "max_value", "min_label", "max_label", "scores", "alerts", "palette_name", "max_duration", "file"} {
		ov, nv := objectField(o, k), objectField(n, k)
		if bytes.Equal(ov, nv) {
			continue
		}
		if k == "scores" || k == "alerts" {
			out = append(out, Structured(humanize(k), ov, nv)...)
			continue
		}
		out = append(out, scalarChange(Field{Verbose: humanize(k)}, ov, nv)...)
	}
	if len(out) == 0 {
		return Structured(verbose, o, n)
	}
	return out
}

func scoresAndReports(verbose string, o, n json.RawMessage) []string {
	var out []string
	for _, f := range []Field{
		{Key: "generate_report", Verbose: "Generate Report"},
		{Key: "show_score_summary", Verbose: "Show Score Summary"},
	} {
		ov, nv := objectField(o, f.Key), objectField(n, f.Key)
		if !bytes.Equal(ov, nv) {
			out = append(out, scalarChange(f, ov, nv)...)
		}
	}
	oldScores, oldSections := splitReports(objectField(o, "reports"))
	newScores, newSections := splitReports(objectField(n, "reports"))
	out = append(out, diffKeyed("Score", oldScores, newScores)...)
	out = append(out, diffKeyed("Section", oldSections, newSections)...)
	if len(out) == 0 {
		return Structured(verbose, o, n)
	}
	return out
}

func splitReports(raw json.RawMessage) (scores, sections []keyed) {
	var list []map[string]json.RawMessage
	if isNull(raw) || json.Unmarshal(raw, &list) != nil {
		return nil, nil
	}
	for _, m := range list {
		name := display(m["name"])
		k := keyed{key: name, name: name, raw: mustMarshal(m)}
		if display(m["type"]) == "score" {
			if id := display(m["id"]); id != "" && id != "null" {
				k.key = id
			}
			scores = append(scores, k)
			continue
		}
		sections = append(sections, k)
	}
	return scores, sections
}

func subscaleSetting(verbose string, o, n json.RawMessage) []string {
	var out []string
	f := Field{Verbose: "Calculate Total Score"}
	if ov, nv := objectField(o, "calculate_total_score"), objectField(n, "calculate_total_score"); !bytes.Equal(ov, nv) {
		out = append(out, scalarChange(f, ov, nv)...)
	}
	out = append(out, diffKeyed("Subscale", rows(objectField(o, "subscales"), "name"), rows(objectField(n, "subscales"), "name"))...)
	if ov, nv := objectField(o, "total_scores_table_data"), objectField(n, "total_scores_table_data"); !bytes.Equal(ov, nv) {
		out = append(out, Structured("Total Scores Table", ov, nv)...)
	}
	if len(out) == 0 {
		return Structured(verbose, o, n)
	}
	return out
}

// Compare builds the change log from prev to next. A nil prev describes
// the initial version.
func Compare(prev, next *Snapshot) *AppletChange {
	res := &AppletChange{
		DisplayName: next.Applet.DisplayName,
		Version:     next.Applet.Version,
		Changes:     []string{},
	}
	if prev == nil {
		res.Changes = append(res.Changes, fmt.Sprintf("Applet %s was added", next.Applet.DisplayName))
		for _, a := range next.Activities {
			res.Activities = append(res.Activities, addedActivity(a))
		}
		for _, f := range next.Flows {
			res.ActivityFlows = append(res.ActivityFlows, EntityChange{
				Name:    fmt.Sprintf("Activity Flow %s was added", f.Name),
				Changes: flowFields.Compare(nil, f.FlowAttrs),
			})
		}
		return res
	}

	res.Changes = append(res.Changes, appletFields.Compare(prev.Applet.AppletAttrs, next.Applet.AppletAttrs)...)
	res.Activities = compareActivities(prev.Activities, next.Activities)
	res.ActivityFlows = compareFlows(prev, next)
	return res
}

func addedActivity(a entity.ActivityHistory) EntityChange {
	c := EntityChange{
		Name:    fmt.Sprintf("Activity %s was added", a.Name),
		Changes: activityFields.Compare(nil, a.ActivityAttrs),
	}
	for _, it := range a.Items {
		c.Items = append(c.Items, EntityChange{
			Name:    fmt.Sprintf("Item %s was added", it.Name),
			Changes: itemFields.Compare(nil, it.ItemAttrs),
		})
	}
	return c
}

func compareActivities(prev, next []entity.ActivityHistory) []EntityChange {
	var out []EntityChange
	prevByID := make(map[string]entity.ActivityHistory, len(prev))
	for _, a := range prev {
		prevByID[a.ID] = a
	}
	seen := map[string]struct{}{}
	for _, a := range next {
		seen[a.ID] = struct{}{}
		old, ok := prevByID[a.ID]
		if !ok {
			out = append(out, addedActivity(a))
			continue
		}
		c := EntityChange{
			Name:    fmt.Sprintf("Activity %s was updated", a.Name),
			Changes: activityFields.Compare(old.ActivityAttrs, a.ActivityAttrs),
			Items:   compareItems(old.Items, a.Items),
		}
		if len(c.Changes) > 0 || len(c.Items) > 0 {
			out = append(out, c)
		}
	}
	for _, a := range prev {
		if _, ok := seen[a.ID]; !ok {
			out = append(out, EntityChange{Name: fmt.Sprintf("Activity %s was removed", a.Name)})
		}
	}
	return out
}

func compareItems(prev, next []entity.ActivityItemHistory) []EntityChange {
	var out []EntityChange
	prevByID := make(map[string]entity.ActivityItemHistory, len(prev))
	for _, it := range prev {
		prevByID[it.ID] = it
	}
	seen := map[string]struct{}{}
	for _, it := range next {
		seen[it.ID] = struct{}{}
		old, ok := prevByID[it.ID]
		if !ok {
			out = append(out, EntityChange{
				Name:    fmt.Sprintf("Item %s was added", it.Name),
				Changes: itemFields.Compare(nil, it.ItemAttrs),
			})
			continue
		}
		if diff := itemFields.Compare(old.ItemAttrs, it.ItemAttrs); len(diff) > 0 {
			out = append(out, EntityChange{Name: fmt.Sprintf("Item %s was updated", it.Name), Changes: diff})
		}
	}
	for _, it := range prev {
		if _, ok := seen[it.ID]; !ok {
			out = append(out, EntityChange{Name: fmt.Sprintf("Item %s was removed", it.Name)})
		}
	}
	return out
}

func compareFlows(prev, next *Snapshot) []EntityChange {
	names := func(s *Snapshot) map[string]string {
		m := make(map[string]string, len(s.Activities))
		for _, a := range s.Activities {
			m[a.IDVersion] = a.Name
		}
		return m
	}
	prevNames, nextNames := names(prev), names(next)
	flowActivities := func(f entity.FlowHistory, m map[string]string) string {
		list := make([]string, 0, len(f.Items))
		for _, it := range f.Items {
			list = append(list, m[it.ActivityID])
		}
		return strings.Join(list, ", ")
	}

	var out []EntityChange
	prevByID := make(map[string]entity.FlowHistory, len(prev.Flows))
	for _, f := range prev.Flows {
		prevByID[f.ID] = f
	}
	seen := map[string]struct{}{}
	for _, f := range next.Flows {
		seen[f.ID] = struct{}{}
		old, ok := prevByID[f.ID]
		if !ok {
			out = append(out, EntityChange{
				Name:    fmt.Sprintf("Activity Flow %s was added", f.Name),
				Changes: flowFields.Compare(nil, f.FlowAttrs),
			})
			continue
		}
		diff := flowFields.Compare(old.FlowAttrs, f.FlowAttrs)
		if a, b := flowActivities(old, prevNames), flowActivities(f, nextNames); a != b {
			diff = append(diff, fmt.Sprintf("Activities in Flow were updated to: %s", b))
		}
		if len(diff) > 0 {
			out = append(out, EntityChange{Name: fmt.Sprintf("Activity Flow %s was updated", f.Name), Changes: diff})
		}
	}
	for _, f := range prev.Flows {
		if _, ok := seen[f.ID]; !ok {
			out = append(out, EntityChange{Name: fmt.Sprintf("Activity Flow %s was removed", f.Name)})
		}
	}
	return out
}
