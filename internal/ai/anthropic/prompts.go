package anthropic

import "fmt"

// buildAssessmentPrompt creates the judging prompt for a short story
func buildAssessmentPrompt(title, body, theme string) string {
	prompt := `You are an experienced fiction editor judging a monthly short story competition. Read the story below and score it on four criteria, each from 0 to 10:

1. **Creativity** - Originality of premise, voice, and imagery
2. **Prose** - Sentence craft, word choice, rhythm, and clarity
3. **Structure** - Pacing, shape of the arc, and a satisfying ending
4. **Prompt Adherence** - How well the story serves the competition theme, or its own stated intent when no theme is given

**Guidelines:**
- Use the whole scale; 5 is a competent story, 9 and above is exceptional
- Judge the writing on the page, not the subject matter
- Keep feedback specific and actionable, at most three short paragraphs`

	if theme != "" {
		prompt += fmt.Sprintf("\n\n**Competition Theme:**\n%s", theme)
	}

	prompt += fmt.Sprintf("\n\n**Title:** %s\n\n**Story:**\n%s", title, body)

	prompt += `

**Response Format:**
Return your assessment as a JSON object with this exact structure:

{
  "scores": {
    "creativity": 0.0,
    "prose": 0.0,
    "structure": 0.0,
    "prompt_adherence": 0.0
  },
  "feedback": "Specific feedback for the author"
}

**Important:** Return ONLY the JSON object, no additional text or explanation.`

	return prompt
}
