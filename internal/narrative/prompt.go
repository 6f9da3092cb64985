package narrative

import "strings"

// MaxInstructionRunes caps the caller's free-text instruction. Longer input is
// cut, not rejected.
const MaxInstructionRunes = 1000

const (
	promptPreamble = "You are an analytical assistant. Below is a merged dataset that combines:\n" +
		"- Income data (from 2021 ACS, B19001/B19013)\n" +
		"- Occupational data (from 2021 ACS Subject Table S2401)\n" +
		"- Race data (from 2020 Decennial Census DHC Table P8, including 63 race categories)\n\n" +
		"Here is the data in CSV format:\n\n"
	promptClosing = "Please provide a comprehensive semantic analysis exploring the relationship between " +
		"income distribution, occupational profile, and racial composition in these Rockland County ZIP codes."
)

// BuildPrompt embeds csv in the analysis template, adding the instruction
// section when the trimmed instruction is not empty.
func BuildPrompt(csv, instruction string) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString(csv)
	b.WriteString("\n")
	if trimmed := TrimInstruction(instruction); trimmed != "" {
		b.WriteString("\n\nUser request:\n")
		b.WriteString(trimmed)
		b.WriteString("\n\nIncorporate the user's request above while staying data-grounded.")
	}
	b.WriteString(promptClosing)
	return b.String()
}

// TrimInstruction strips surrounding whitespace and truncates to
// MaxInstructionRunes.
func TrimInstruction(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > MaxInstructionRunes {
		return string(runes[:MaxInstructionRunes])
	}
	return s
}
