package synth

import (
	"fmt"
	"strings"

	"github.com/personalens/persona-mvp/engine/corpus"
)

const systemPrompt = `You are a professional user researcher. You build evidence-grounded
personas from a Reddit user's public activity. Every claim you make must be
supported by a verbatim quote from the supplied evidence. You never invent
evidence and you never paraphrase inside quotes.`

const outputContract = `Return ONE JSON object with EXACTLY these keys (case-sensitive):

{
  "AGE": "<estimated age range, e.g. 25-34>",
  "LOCATION": "<estimated location>",
  "TRAITS": ["<short trait>", ...],
  "BEHAVIOURS": [{"statement": "<observed behaviour>", "quote": "<verbatim excerpt>", "index": <evidence index>}, ...],
  "FRUSTRATIONS": [{"statement": "<frustration>", "quote": "<verbatim excerpt>", "index": <evidence index>}, ...],
  "GOALS": [{"statement": "<goal or need>", "quote": "<verbatim excerpt>", "index": <evidence index>}, ...],
  "PERSONALITY": "<100-150 word free-text summary>",
  "MOTIVATIONS": "<free-text description of what drives this user>",
  "QUOTE": "<the single most representative verbatim quote>"
}

Rules:
1. Every "quote" must be copied character for character from the body of one
   evidence item. Do not trim, rephrase, or fix typos.
2. Reference evidence only by its numeric index. Never output links.
3. Each index must point at the item the quote was taken from.
4. Populate every key. Use your best estimate for AGE and LOCATION when the
   evidence is indirect.
5. Output only the JSON object. No prose, no markdown, no code fences.`

// buildPrompt renders the indexed corpus and the output contract into a
// single reasoning request. A non-empty violations list appends corrective
// instructions for a repair round.
func buildPrompt(c *corpus.Corpus, violations []string) string {
	var b strings.Builder

	b.WriteString("EVIDENCE ITEMS (cite by index):\n\n")
	for i, it := range c.Items() {
		fmt.Fprintf(&b, "[%d] %s in r/%s on %s:\n%s\n\n",
			i, it.Kind, it.Subreddit, it.CreatedUTC.Format("2006-01-02"), it.Body)
	}

	b.WriteString(outputContract)

	if len(violations) > 0 {
		b.WriteString("\n\nYour previous response violated the contract. Regenerate the complete object and fix every violation listed below:\n")
		for _, v := range violations {
			b.WriteString("- ")
			b.WriteString(v)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// malformedNote is appended for the single corrective re-invocation after a
// syntactically malformed response.
const malformedNote = `

Your previous response was not a single well-formed JSON object (%s).
Respond again with only the JSON object, starting with '{' and ending with '}'.`
