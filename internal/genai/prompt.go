package genai

const systemInstruction = `You are an assistant that builds single-file web apps.
When you change the app, reply with a short explanation followed by the complete
document in one fenced block that starts with ` + "```html" + ` and ends with ` + "```" + `.
Put all CSS and JavaScript inline. Never split the document across several blocks.
If the user only asks a question, answer in prose without a code block.`

const memoryNote = `
Earlier turns of this conversation are included; keep the user's prior requests
in mind when editing the current document.`

const summaryInstruction = `Summarize what the following web app does in one or two plain sentences.`

// SystemInstruction returns the instruction sent with every generation.
func SystemInstruction(memoryEnabled bool) string {
	if memoryEnabled {
		return systemInstruction + memoryNote
	}
	return systemInstruction
}

// SummaryRequest builds the one-shot request describing a document.
func SummaryRequest(document string) Request {
	return Request{System: summaryInstruction, Prompt: document}
}
