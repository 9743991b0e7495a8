package vision

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/relscout/internal/plan"
	"github.com/xkilldash9x/relscout/internal/state"
)

const systemPrompt = `You are the eyes of a browser automation tool working on GitHub.
You are shown screenshots or raw page text and answer with strict JSON only.
Never invent values that are not visible; leave unknown fields as empty strings.`

func classifyPrompt(p plan.Plan) string {
	var sb strings.Builder
	sb.WriteString("Look at this GitHub page and decide what kind of page it is and what to do next.\n\n")
	sb.WriteString("Page types: home (main GitHub page), search_results (list of repositories), ")
	sb.WriteString("repo_page (one repository's main page), releases_page (a repository's releases list), or unknown.\n\n")
	sb.WriteString("What to do: on home, use the search bar (action=type_search, target=search query). ")
	sb.WriteString("On search_results, pick the right repository (action=click, target=exact link text like owner/name). ")
	if p.Goal.Behavior().Terminal == state.TargetSection {
		sb.WriteString("On repo_page go to Releases (action=click, target=Releases). On releases_page you are done (action=done). ")
	} else {
		sb.WriteString("On repo_page you are done (action=done, target empty). ")
	}
	sb.WriteString("If the page needs scrolling to reveal what you need, use action=scroll. Otherwise action=none.\n\n")
	fmt.Fprintf(&sb, "Target repository: %s. Search query: %s. Goal: %s.\n", p.Target, p.SearchQuery, p.Goal)
	fmt.Fprintf(&sb, "Note which of these you can see: %s. Set confidence between 0 and 1.\n\n", strings.Join(p.RequiredEntities, ", "))
	sb.WriteString(`Reply as {"state": "...", "confidence": 0.0, "found_entities": [], "action": "...", "target": "...", "notes": "..."}`)
	return sb.String()
}

func locatePrompt(pageHeight int) string {
	return fmt.Sprintf(`This is a full-page screenshot of a GitHub releases page, %d pixels tall.
One release carries the "Latest" badge. Use that badge, not the position in the list.
Identify where that single release block starts and ends vertically, as a percentage of the full page height:
top_percent (where the block starts) and bottom_percent (where it ends, before the next release).
Be precise so only that block is captured, not older releases below. Set confidence between 0 and 1.
Reply as {"top_percent": 0, "bottom_percent": 0, "confidence": 0.0}`, pageHeight)
}

func parseTextPrompt(text, target string) string {
	return fmt.Sprintf(`You are given raw text copied from the latest release block of %s.
Extract version, tag, author, published_at, notes (full body) and assets (name and url of each download).
Use only the text provided; leave fields empty if missing.
Format notes as clean markdown with one "- " bullet per line and at most one blank line between sections.
Reply as {"version": "", "tag": "", "author": "", "published_at": "", "notes": "", "assets": [{"name": "", "url": ""}]}

Raw text:
%s`, target, text)
}

func oneShotPrompt(target, userPrompt string) string {
	prompt := fmt.Sprintf(`This is a GitHub releases page for %s. One release is marked as the current latest, usually with a green "Latest" badge.
Extract only that one: version, tag, author, published_at (the date or relative time shown), notes (full body) and assets (name and url for each download).
Ignore any older releases listed below.
Reply as {"version": "", "tag": "", "author": "", "published_at": "", "notes": "", "assets": [{"name": "", "url": ""}]}`, target)
	if userPrompt = strings.TrimSpace(userPrompt); userPrompt != "" {
		prompt += fmt.Sprintf("\n\nThe user also asked: %q. Include relevant visible detail in notes.", userPrompt)
	}
	return prompt
}

func answerPrompt(target, question string) string {
	return fmt.Sprintf(`This is a GitHub page for %s. The user asked: %q.
Answer from what is visible on the page only.
Reply as {"result": <your answer as a string, list or object>}`, target, question)
}
