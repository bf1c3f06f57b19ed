package generator

import (
	"strings"
)

// Prompt is the message pair sent to the LLM. Stage lets clients and test
// doubles tell the three calls apart without parsing the text.
type Prompt struct {
	Stage  Stage
	System string
	User   string
}

// BuildUnderstandingPrompt asks for a structured explanation of the iFlow
// described by documentText. The model must not emit code or a final command.
func BuildUnderstandingPrompt(documentText string) Prompt {
	var sb strings.Builder
	sb.WriteString("Read the following document describing an SAP CPI iFlow.\n\n")
	sb.WriteString("Your task:\n")
	sb.WriteString("1. Understand the iFlow design intent\n")
	sb.WriteString("2. Extract and normalize the details\n")
	sb.WriteString("3. Do NOT create code\n")
	sb.WriteString("4. Do NOT generate a final execution command\n\n")
	sb.WriteString("Return a clear, structured explanation covering:\n")
	for _, item := range understandingSections {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
	sb.WriteString("\nDocument:\n")
	sb.WriteString(documentText)

	return Prompt{
		Stage:  StageUnderstanding,
		System: "You are an SAP Integration Suite expert.",
		User:   sb.String(),
	}
}

var understandingSections = []string{
	"iFlow name",
	"Package name",
	"Sender adapter",
	"Processing steps in order",
	"Message mappings (names)",
	"Receiver adapter and receiver name",
	"Exception subprocess (if any)",
}

// BuildEditPrompt asks the model to apply a single reviewer instruction to the
// current design and return the whole document, not a patch.
func BuildEditPrompt(current DesignDocument, instruction string) Prompt {
	var sb strings.Builder
	sb.WriteString("You are given:\n")
	sb.WriteString("1. The current approved iFlow design\n")
	sb.WriteString("2. A human edit instruction\n\n")
	sb.WriteString("Apply ONLY the requested change.\n")
	sb.WriteString("Preserve all other content exactly.\n")
	sb.WriteString("Do not summarize.\n")
	sb.WriteString("Do not remove sections unless explicitly instructed.\n\n")
	sb.WriteString("Current design:\n")
	sb.WriteString(current.String())
	sb.WriteString("\n\nEdit instruction:\n")
	sb.WriteString(instruction)
	sb.WriteString("\n\nReturn the FULL updated design.")

	return Prompt{
		Stage:  StageEdit,
		System: "You are an SAP CPI design reviewer.",
		User:   sb.String(),
	}
}

// BuildFinalPrompt turns an approved design into the canonical 2-4 line
// instruction for the flow-creation system.
func BuildFinalPrompt(approved ApprovedDesign) Prompt {
	var sb strings.Builder
	sb.WriteString("Based ONLY on the approved design below, generate a concise 2–4 line instruction.\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Use imperative form (\"create\", \"update\")\n")
	sb.WriteString("- Preserve names exactly\n")
	sb.WriteString("- Do not add explanations\n")
	sb.WriteString("- Do not invent steps\n")
	sb.WriteString("- Output ONLY the final prompt\n\n")
	sb.WriteString("Approved design:\n")
	sb.WriteString(approved.Design().String())

	return Prompt{
		Stage:  StageFinalize,
		System: "You are generating a final execution prompt for an automated SAP CPI iFlow creation system.",
		User:   sb.String(),
	}
}
