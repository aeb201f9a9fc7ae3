package llm

import "strings"

// BuildInstruction composes the extraction instruction: read the attached case
// document, identify procedural facts, dates and pages, and emit exactly the
// declared JSON shape.
func BuildInstruction() string {
	parts := []string{
		"You are a legal expert. Read the attached case document as a file (do not merely summarize extracted text).",
		"Identify procedural facts, dates and page numbers. Build exactly the JSON described by the response schema.",
		"Convert all dates to YYYY-MM-DD.",
		"If the same event is mentioned more than once, keep the most relevant or most recent mention.",
		"Use the document's own page numbers for page_start and page_end.",
		"If page_end < page_start, correct it to page_end = page_start.",
		"IDs must be sequential starting at 0.",
		"For event names, use appropriate legal vocabulary such as:",
		"\"Interlocutory Decision\", \"Summons/Notice\", \"Hearing/Session\", \"Party Filing\", \"Judgment\", \"Appeal\", \"Court Order\".",
		"For evidence flaw, note problems such as \"partially illegible\" or \"no inconsistencies\".",
		"Avoid assumptions; rely only on the document content.",
		"All required fields must be filled. Never output null for a required field.",
	}
	return strings.Join(parts, " ")
}
