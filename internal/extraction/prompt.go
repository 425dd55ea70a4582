package extraction

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mixelka/clarify/pkg/models"
)

// promptVersion is part of the cache key; bump it when the prompt or schema changes
const promptVersion = "v3"

const extractionPrompt = `You analyze inbound business email for the team "%s".
Team responsibilities: %s
Known partners: %s

Return one JSON object with exactly this structure:
{
  "partner": {"name": string, "domain": string, "codes": [string]},
  "references": {
    "process_numbers": [string],
    "metering_points": [string],
    "delivery_points": [string],
    "periods": [string],
    "case_numbers": [string]
  },
  "classification": {
    "category": one of %s,
    "priority": one of "low", "medium", "high", "critical",
    "effort": one of "small", "medium", "large"
  },
  "summary": string,
  "next_steps": [string],
  "automation": {
    "auto_handle": boolean,
    "draft_response": boolean,
    "forwarding_required": boolean,
    "forward_to": string
  },
  "confidence": number between 0 and 1
}

Identifiers already detected in the text (verify them, add missing ones):
%s

Email:
From: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`

const replyPrompt = `Write a short, polite reply to the email below on behalf of the team.
The clarification case is titled "%s" (category %s).
Summary: %s
Do not promise dates. Return only the reply text without subject line.

Original email:
From: %s
Subject: %s
Body:
%s`

func buildPrompt(msg *models.NormalizedMessage, team *models.TeamContext, hints models.References, maxBody int) string {
	partners := "none"
	if len(team.KnownPartners) > 0 {
		partners = strings.Join(team.KnownPartners, ", ")
	}

	categories := make([]string, len(models.KnownCategories))
	for i, c := range models.KnownCategories {
		categories[i] = `"` + c + `"`
	}

	return fmt.Sprintf(extractionPrompt,
		team.TeamName,
		orDash(team.Responsibilities),
		partners,
		strings.Join(categories, ", "),
		formatHints(hints),
		msg.From.String(),
		msg.Subject,
		truncate(msg.Body, maxBody),
	)
}

func buildReplyPrompt(c *models.ClarificationCase, msg *models.NormalizedMessage, summary string, maxBody int) string {
	return fmt.Sprintf(replyPrompt,
		c.Title,
		c.Category,
		orDash(summary),
		msg.From.String(),
		msg.Subject,
		truncate(msg.Body, maxBody),
	)
}

func formatHints(refs models.References) string {
	all := refs.All()
	if len(all) == 0 {
		return "- none"
	}

	var sb strings.Builder
	for _, r := range all {
		fmt.Fprintf(&sb, "- %s: %s\n", r.Type, r.Value)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// truncate cuts body to at most max bytes without splitting a UTF-8 sequence
func truncate(body string, max int) string {
	if max <= 0 || len(body) <= max {
		return body
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "\n[... truncated ...]"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
