package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mzhao/medcouncil/internal/consult"
)

var (
	sectionStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")).MarginTop(1)
	roleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4CAF50"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	opinionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	decisionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EEEEEE"))
)

// renderResult projects a terminal consultation result into the report text.
// It performs no computation beyond ordering and duration formatting: summary,
// expert roster, per-expert final opinions, then the per-round transcript with
// collapsed rounds showing only their header.
func renderResult(result *consult.Result, expanded map[string]bool, width int) string {
	if result == nil {
		return ""
	}
	wrap := lipgloss.NewStyle().Width(width)
	var sections []string

	sections = append(sections,
		sectionStyle.Render("会诊摘要"),
		wrap.Render(fmt.Sprintf("问题：%s", result.Question)),
		wrap.Render(fmt.Sprintf("用时：%s · 参与专家：%d 位", consult.FormatDuration(result.Duration), len(result.Experts))),
		"",
		sectionStyle.Render("最终结论"),
		wrap.Render(decisionStyle.Render(result.Decision)),
	)

	if len(result.Experts) > 0 {
		sections = append(sections, "", sectionStyle.Render("专家团队"))
		for i, expert := range result.Experts {
			line := fmt.Sprintf("%d. %s — %s", i+1, roleStyle.Render(expert.Role), expert.Description)
			if expert.Hierarchy != "" {
				line += dimStyle.Render(fmt.Sprintf("（%s）", expert.Hierarchy))
			}
			sections = append(sections, wrap.Render(line))
		}
	}

	if len(result.FinalAnswers) > 0 {
		sections = append(sections, "", sectionStyle.Render("各专家最终意见"))
		for _, role := range answerOrder(result) {
			sections = append(sections,
				wrap.Render(roleStyle.Render(role)),
				wrap.Render(opinionStyle.Render(result.FinalAnswers[role])),
				"",
			)
		}
	}

	if len(result.RoundOpinions) > 0 {
		sections = append(sections, sectionStyle.Render("多轮讨论记录"))
		for i, label := range roundLabels(result) {
			marker := "▸"
			if expanded[label] {
				marker = "▾"
			}
			sections = append(sections, wrap.Render(fmt.Sprintf("%s 第 %s 轮讨论 [%d]", marker, label, i+1)))
			if !expanded[label] {
				continue
			}
			round := result.RoundOpinions[label]
			for _, role := range roundOrder(result, round) {
				sections = append(sections,
					wrap.Render("  "+roleStyle.Render(role)),
					wrap.Render("  "+opinionStyle.Render(round[role])),
				)
			}
		}
	}

	return strings.Join(sections, "\n")
}

// roundForKey maps a digit key to the matching round label.
func roundForKey(key string, result *consult.Result) (string, bool) {
	if result == nil {
		return "", false
	}
	idx, err := strconv.Atoi(key)
	if err != nil || idx < 1 {
		return "", false
	}
	labels := roundLabels(result)
	if idx > len(labels) {
		return "", false
	}
	return labels[idx-1], true
}

// roundLabels orders round keys numerically where possible ("1" < "2" < "10"),
// falling back to lexical order for anything non-numeric.
func roundLabels(result *consult.Result) []string {
	labels := make([]string, 0, len(result.RoundOpinions))
	for label := range result.RoundOpinions {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		a, aErr := strconv.Atoi(labels[i])
		b, bErr := strconv.Atoi(labels[j])
		if aErr == nil && bErr == nil {
			return a < b
		}
		if aErr == nil {
			return true
		}
		if bErr == nil {
			return false
		}
		return labels[i] < labels[j]
	})
	return labels
}

// answerOrder lists final-answer roles in roster order, then any roles the
// roster does not know about in lexical order.
func answerOrder(result *consult.Result) []string {
	ordered := make([]string, 0, len(result.FinalAnswers))
	seen := make(map[string]struct{}, len(result.FinalAnswers))
	for _, expert := range result.Experts {
		if _, ok := result.FinalAnswers[expert.Role]; ok {
			ordered = append(ordered, expert.Role)
			seen[expert.Role] = struct{}{}
		}
	}
	var extras []string
	for role := range result.FinalAnswers {
		if _, ok := seen[role]; !ok {
			extras = append(extras, role)
		}
	}
	sort.Strings(extras)
	return append(ordered, extras...)
}

// roundOrder applies the same roster-first ordering to one round's opinions.
func roundOrder(result *consult.Result, round map[string]string) []string {
	ordered := make([]string, 0, len(round))
	seen := make(map[string]struct{}, len(round))
	for _, expert := range result.Experts {
		if _, ok := round[expert.Role]; ok {
			ordered = append(ordered, expert.Role)
			seen[expert.Role] = struct{}{}
		}
	}
	var extras []string
	for role := range round {
		if _, ok := seen[role]; !ok {
			extras = append(extras, role)
		}
	}
	sort.Strings(extras)
	return append(ordered, extras...)
}
