package crew

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/registry"
)

const continuePrompt = "Continue. When you are done, reply with a line starting with \"Final Answer:\" followed by your complete answer."

// stageTasks are the task descriptions per stage key.
var stageTasks = map[string]string{
	"researcher": "Research the following topic thoroughly: %s\n\n" +
		"Identify:\n" +
		"- Key players and their market positions\n" +
		"- Market size estimates and growth trends\n" +
		"- Competitive dynamics and differentiation\n" +
		"- Technology trends and disruption vectors\n" +
		"- Pricing and cost comparisons where available\n\n" +
		"Structure your findings clearly with sections and bullet points.",
	"analyst": "Transform the research findings on %s into 2-4 quantitative chart datasets.\n\n" +
		"For EACH chart, output a JSON object with exactly these fields:\n" +
		`{"chart_type": "bar", "title": "Chart Title", "labels": ["A", "B", "C"], "values": [10, 20, 30], "unit": "%%", "filename": "descriptive_filename"}` + "\n\n" +
		"Chart types available: bar, horizontal_bar, pie, line.\n" +
		"Output ONLY the JSON objects, one per chart.",
	"visualizer": "Generate charts for %s from the analyst's JSON datasets using ChartTool.\n\n" +
		"For EACH JSON object from the analyst, call ChartTool with the entire JSON object as the input.\n" +
		"Generate ALL charts. Your final answer lists the saved chart paths.",
	"writer": "Write a polished markdown report on: %s\n\n" +
		"Include these sections:\n" +
		"1. Executive Summary (2-3 paragraphs)\n" +
		"2. Key Players & Market Position\n" +
		"3. Market Drivers and Trends\n" +
		"4. Strategic Analysis\n" +
		"5. Recommendations\n\n" +
		"Embed chart references using: ![Chart Title](./charts/filename.png)\n" +
		"Use the filenames from the visualization step.\n" +
		`Save the report with FileTool using {"filename": "report", "content": "<markdown>"}, then give the full report as your final answer.`,
}

func systemPrompt(stage registry.Agent, available []tools.Tool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s.\n%s\nYour goal: %s\n\n", stage.Role, stage.Backstory, stage.Goal)

	if len(available) > 0 {
		b.WriteString("You have access to the following tools:\n")
		for _, t := range available {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name(), t.Description())
		}
		b.WriteString("\nTo use a tool, reply exactly in this format and then stop:\n" +
			"Thought: <your reasoning>\nAction: <tool name>\nAction Input: <tool input>\n\n" +
			"You will then receive an Observation with the result.\n")
	}
	b.WriteString("When you have the complete answer, reply:\n" +
		"Thought: I now know the final answer\nFinal Answer: <your complete answer>")
	return b.String()
}

func taskPrompt(topic string, stage registry.Agent, brief string, prior []StageOutcome) string {
	var b strings.Builder

	task, ok := stageTasks[stage.Key]
	if !ok {
		task = "Work on the following topic as the " + stage.Role + ": %s"
	}
	fmt.Fprintf(&b, task, topic)

	if brief != "" {
		fmt.Fprintf(&b, "\n\nInstruction from your director: %s", brief)
	}

	if len(prior) > 0 {
		b.WriteString("\n\nContext from previous steps:")
		for _, o := range prior {
			fmt.Fprintf(&b, "\n\n## %s\n%s", o.Agent.Role, o.Output)
		}
	}
	return b.String()
}
