package quote

import "github.com/ent0n29/dailyquote/internal/content"

const systemInstruction = `You write one original daily quote for a motivational audio app.
Voice: direct, grounded, confident, never cheesy. Speak to the listener in plain modern English.
Rules:
- One to three short sentences, under 250 characters in total.
- No quotation marks, no attribution, no hashtags, no emojis.
- Do not mention that you are an AI and do not add any preface or explanation.
Reply with the quote text only.`

var templates = map[content.Category]string{
	content.CategoryMotivation: "Write a motivational quote that pushes the listener to start something today instead of waiting for the perfect moment.",
	content.CategoryWisdom:     "Write a quote of practical wisdom about perspective, patience or how small choices shape a life.",
	content.CategoryGrindset:   "Write a hard-edged quote about relentless work ethic, outworking doubt and showing up when nobody is watching.",
	content.CategoryReflection: "Write a calm, reflective quote that invites the listener to pause and notice what actually matters to them.",
	content.CategoryDiscipline: "Write a quote about discipline as a daily practice: keeping promises to yourself when motivation fades.",
}

// PromptFor returns the user prompt of category, or false for an unknown category.
func PromptFor(category content.Category) (string, bool) {
	p, ok := templates[category]
	return p, ok
}
