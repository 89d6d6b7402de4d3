package webhook

import (
	"github.com/kart-io/errica/pkg/errica/channel"
	"github.com/kart-io/errica/pkg/errica/event"
)

var themeColors = map[event.Severity]string{
	event.Debug:    "9E9E9E",
	event.Info:     "2196F3",
	event.Warning:  "FF9800",
	event.Error:    "F44336",
	event.Critical: "8B0000",
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	Ts     int64        `json:"ts"`
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

func slackPayload(ev *event.Event) slackMessage {
	att := slackAttachment{
		Color:  "#" + themeColors[ev.Level],
		Title:  ev.Message,
		Footer: channel.AppLine(ev),
		Ts:     ev.Timestamp.Unix(),
	}
	for _, f := range ev.Context.All() {
		att.Fields = append(att.Fields, slackField{Title: f.Key, Value: channel.FormatValue(f.Value), Short: true})
	}
	if ev.HasException() {
		att.Text = ev.Exception.Kind + ": " + ev.Exception.Message
	}
	return slackMessage{Text: ev.Title(), Attachments: []slackAttachment{att}}
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	Facts         []teamsFact `json:"facts,omitempty"`
	Text          string      `json:"text,omitempty"`
}

type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Title      string         `json:"title"`
	Sections   []teamsSection `json:"sections,omitempty"`
}

func teamsPayload(ev *event.Event) teamsCard {
	section := teamsSection{ActivityTitle: channel.AppLine(ev)}
	for _, f := range ev.Context.All() {
		section.Facts = append(section.Facts, teamsFact{Name: f.Key, Value: channel.FormatValue(f.Value)})
	}
	if ev.HasException() {
		section.Text = ev.Exception.Kind + ": " + ev.Exception.Message
	}
	return teamsCard{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: themeColors[ev.Level],
		Summary:    ev.Title(),
		Title:      ev.Title(),
		Sections:   []teamsSection{section},
	}
}
