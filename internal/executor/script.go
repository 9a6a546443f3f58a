package executor

import (
	"time"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/artifacts"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/registry"
	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

// demoCharts are rendered for real by the simulated executor.
var demoCharts = []types.ChartSpec{
	{
		ChartType: types.ChartTypeHorizontalBar,
		Title:     "Edge AI Inference Market Share by Provider (2025 Est.)",
		Labels:    []string{"AWS Inferentia", "Azure AI", "Google Cloud TPU", "CoreWeave", "Lambda Labs", "Akamai / Linode"},
		Values:    []float64{31, 24, 18, 12, 8, 4},
		Unit:      "% market share",
		Filename:  "market_share",
	},
	{
		ChartType: types.ChartTypeLine,
		Title:     "Edge AI Inference Market Growth (2022-2027)",
		Labels:    []string{"2022", "2023", "2024", "2025", "2026", "2027"},
		Values:    []float64{8.2, 14.6, 24.1, 38.5, 58.3, 82.0},
		Unit:      "$ Billions",
		Filename:  "market_growth",
	},
	{
		ChartType: types.ChartTypeBar,
		Title:     "GPU Cloud Cost Comparison (per GPU-hour)",
		Labels:    []string{"AWS p5", "Azure ND", "GCP A3", "CoreWeave", "Lambda", "Akamai"},
		Values:    []float64{32.77, 29.40, 31.22, 18.50, 14.80, 12.50},
		Unit:      "$/hr",
		Filename:  "cost_comparison",
	},
}

const demoReport = `# Edge AI Inference: Competitive Landscape Analysis

## Executive Summary

The edge AI inference market is experiencing explosive growth, projected to reach **$82B by 2027** at a CAGR of 58.9%. While hyperscalers dominate current market share, a significant opportunity exists for **cost-competitive, GPU-native cloud providers** to capture workloads that demand low latency, data sovereignty, and predictable pricing.

This analysis examines the competitive dynamics, identifies key market drivers, and evaluates Akamai's strategic position as it enters the edge AI inference space through its Linode GPU infrastructure.

---

## Key Players & Market Position

### Hyperscaler Dominance (73% combined share)
- **AWS Inferentia/Trainium** (31%): Custom silicon strategy with Inf2 instances. Strong ecosystem lock-in through SageMaker. Premium pricing reflects brand tax.
- **Azure AI** (24%): Tight coupling with OpenAI partnership. NC-series GPU instances. Enterprise agreements drive adoption.
- **Google Cloud TPU** (18%): TPU v5e offers best price/performance for transformer workloads. But limited to Google's ecosystem.

### GPU-Native Challengers (24% combined, growing fast)
- **CoreWeave** (12%): Purpose-built GPU cloud. NVIDIA partnership. 60-80% cheaper than hyperscalers for sustained workloads.
- **Lambda Labs** (8%): Developer-focused. Reserved GPU clusters. Strong ML community presence.
- **Akamai / Linode** (4%): Newest entrant. RTX 4000/6000 Ada instances in select regions. Edge network advantage is unique differentiator.

---

## Market Drivers

1. **Latency sensitivity**: Real-time inference (video analytics, content moderation, autonomous systems) cannot tolerate round-trips to centralized clouds.
2. **Data sovereignty**: GDPR, healthcare regulations, and financial compliance require processing at the point of data generation.
3. **Cost pressure**: Hyperscaler GPU pricing is 2-4x higher than GPU-native alternatives for sustained workloads.
4. **Model efficiency gains**: Quantization (GPTQ, AWQ), distillation, and smaller models (Gemma, Phi, Llama) make edge deployment viable on mid-tier GPUs.

---

## Akamai's Strategic Position

### Strengths
- **Global edge network**: 4,200+ PoPs provide unmatched geographic reach for low-latency inference
- **Cost structure**: Linode GPU instances priced 40-60% below hyperscaler equivalents
- **Developer trust**: Linode community brings cloud-native developers who value simplicity
- **Network integration**: Unique ability to combine CDN intelligence with compute placement

### Challenges
- **GPU fleet scale**: Currently limited regions and GPU SKUs vs. hyperscaler breadth
- **ML ecosystem**: No equivalent to SageMaker, Vertex AI, or Azure ML for managed ML ops
- **Enterprise sales motion**: Building enterprise AI buyer relationships takes time

---

## Recommendations

1. **Lead with price/performance**: The cost comparison data shows Akamai at $12.50/GPU-hr vs. $32.77 for AWS. Make this the headline.
2. **Target latency-sensitive workloads**: Content moderation, real-time video analytics, and gaming AI where edge placement matters.
3. **Build inference-specific tooling**: One-click model deployment, auto-scaling, and monitoring dashboards purpose-built for inference.
4. **Partner for ecosystem**: Integrate with Ollama, vLLM, and TensorRT to meet developers where they are.

---

## Data Visualizations

![Edge AI Inference Market Share by Provider (2025 Est.)](./charts/market_share.png)

![Edge AI Inference Market Growth (2022-2027)](./charts/market_growth.png)

![GPU Cloud Cost Comparison (per GPU-hour)](./charts/cost_comparison.png)

---

*Report generated by Akamai Edge AI Market Analyst, a multi-agent system running on Akamai GPU infrastructure.*
`

// scriptStep is one timed event of the simulated run.
type scriptStep struct {
	delay time.Duration
	event types.Event
}

func after(seconds float64, ev types.Event) scriptStep {
	return scriptStep{delay: time.Duration(seconds * float64(time.Second)), event: ev}
}

// buildScript returns the timed event sequence of a simulated run. charts
// are the served paths of the rendered demo charts, in demoCharts order.
func buildScript(topic string, reg registry.Registry, charts []string) []scriptStep {
	manager := reg.Manager()
	agent := func(key string) registry.Agent {
		a, err := reg.Get(key)
		if err != nil {
			return registry.Agent{Key: key}
		}
		return a
	}
	start := func(a registry.Agent, summary string) types.Event {
		return types.Event{
			Type:        types.EventTypeAgentStart,
			Agent:       a.Key,
			Role:        a.Role,
			Model:       a.Model,
			VM:          a.VM,
			TaskSummary: summary,
		}
	}
	output := func(a registry.Agent, content string) types.Event {
		return types.Event{Type: types.EventTypeAgentOutput, Agent: a.Key, Content: content}
	}
	delegate := func(to registry.Agent, instruction string) types.Event {
		return types.Event{Type: types.EventTypeDelegation, From: manager.Key, To: to.Key, Instruction: instruction}
	}
	complete := func(a registry.Agent, elapsed float64) types.Event {
		return types.Event{Type: types.EventTypeAgentComplete, Agent: a.Key, ElapsedSeconds: types.Float(elapsed)}
	}
	chartAt := func(i int) types.Event {
		path := artifacts.ChartURLPrefix + demoCharts[i].Filename + ".png"
		if i < len(charts) {
			path = charts[i]
		}
		return types.Event{
			Type:       types.EventTypeChartCreated,
			Agent:      "visualizer",
			ChartTitle: demoCharts[i].Title,
			Path:       path,
		}
	}

	researcher := agent("researcher")
	analyst := agent("analyst")
	visualizer := agent("visualizer")
	writer := agent("writer")

	return []scriptStep{
		after(0.5, start(manager, "Planning research approach for: "+topic)),
		after(2.0, output(manager, "I'll coordinate a comprehensive analysis of this topic. Let me delegate to our specialist team.\n\n"+
			"Research plan:\n"+
			"1. Market research: gather key players, trends, and competitive dynamics\n"+
			"2. Data analysis: produce quantitative datasets for visualization\n"+
			"3. Chart generation: create presentation-ready visualizations\n"+
			"4. Report writing: synthesize everything into an executive report")),

		after(1.5, delegate(researcher, "Conduct comprehensive market research on edge AI inference providers. "+
			"Identify key players, market shares, growth trends, and competitive dynamics.")),
		after(0.5, start(researcher, "Researching edge AI inference competitive landscape")),
		after(3.0, output(researcher, "## Initial Research Findings\n\n"+
			"The edge AI inference market is segmented into three tiers:\n\n"+
			"**Tier 1: Hyperscalers** (73% market share)\n"+
			"- AWS Inferentia/Trainium: Custom silicon, SageMaker ecosystem\n"+
			"- Azure AI: OpenAI partnership, NC-series GPUs\n"+
			"- Google Cloud TPU: Best transformer price/performance\n\n"+
			"**Tier 2: GPU-Native Challengers** (24%)\n"+
			"- CoreWeave: Purpose-built GPU cloud, 60-80% cheaper\n"+
			"- Lambda Labs: Developer-focused reserved clusters\n\n"+
			"**Tier 3: Edge-Native Entrants** (3-4%)\n"+
			"- Akamai/Linode: RTX Ada instances, edge network advantage")),
		after(2.5, output(researcher, "## Market Dynamics\n\n"+
			"- Market size: ~$38.5B in 2025, projected $82B by 2027 (58.9% CAGR)\n"+
			"- Key drivers: latency requirements, data sovereignty regulations, cost pressure\n"+
			"- Disruption vector: smaller quantized models (Gemma, Phi, Llama) enable mid-tier GPU deployment\n"+
			"- Pricing gap: hyperscalers charge 2-4x premium over GPU-native alternatives")),
		after(1.0, complete(researcher, 9)),

		after(1.0, delegate(analyst, "Transform the research findings into quantitative datasets suitable for chart generation. "+
			"Produce 2-3 JSON chart datasets covering market share, growth trends, and cost comparison.")),
		after(0.5, start(analyst, "Producing chart-ready datasets from research")),
		after(3.0, output(analyst, "## Chart Datasets Prepared\n\n"+
			"**Dataset 1: Market Share (horizontal bar)**\n"+
			"Providers ranked by estimated 2025 market share percentage.\n\n"+
			"**Dataset 2: Market Growth (line)**\n"+
			"Year-over-year market size from $8.2B (2022) to projected $82B (2027).\n\n"+
			"**Dataset 3: Cost Comparison (bar)**\n"+
			"Per-GPU-hour pricing across providers, highlighting Akamai's cost advantage.")),
		after(1.0, complete(analyst, 6)),

		after(1.0, delegate(visualizer, "Generate professional charts from the analyst's datasets using the ChartTool. "+
			"Create all three visualizations with the Akamai color palette.")),
		after(0.5, start(visualizer, "Generating presentation-ready charts")),
		after(2.0, chartAt(0)),
		after(2.0, chartAt(1)),
		after(2.0, chartAt(2)),
		after(1.0, complete(visualizer, 8)),

		after(1.0, delegate(writer, "Produce a polished markdown report incorporating the research, analysis, and chart references. "+
			"Include an executive summary, key findings, and strategic recommendations.")),
		after(0.5, start(writer, "Writing final markdown report")),
		after(4.0, output(writer, "Report drafted with executive summary, competitive analysis, market drivers, "+
			"strategic positioning, and embedded chart references. Saving to file...")),
		after(1.5, complete(writer, 7)),

		after(1.0, output(manager, "All specialist agents have completed their tasks. The final report includes "+
			"comprehensive market research, three data visualizations, and strategic recommendations. "+
			"Review complete, delivering results.")),
	}
}
