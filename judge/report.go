package judge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/svjt78/ragmesh/core"
)

// maxClaims bounds the claim to evidence map.
const maxClaims = 10

var remediations = map[string]string{
	core.CheckCitationCoverage: "Add more citations to support factual claims. Ensure every claim has a corresponding citation.",
	core.CheckGroundedness:     "Ensure all claims are directly supported by the provided context. Remove or rephrase unsupported claims.",
	core.CheckHallucination:    "Remove fabricated information. Only include facts present in the source documents.",
	core.CheckRelevance:        "Focus the answer more directly on addressing the specific query. Remove tangential information.",
	core.CheckConsistency:      "Review the answer for internal contradictions. Ensure all statements align with each other.",
	core.CheckToxicity:         "Remove any toxic, offensive, or inappropriate language from the answer.",
	core.CheckPIILeakage:       "Redact any personally identifiable information (SSN, email, phone, etc.) from the answer.",
	core.CheckBias:             "Remove biased or discriminatory language. Ensure fair and neutral treatment of all groups.",
	core.CheckContradiction:    "Ensure the answer does not contradict the source context. Align claims with evidence.",
}

// Remediation returns the fix suggested for a failed check.
func Remediation(check string) string {
	if r, ok := remediations[check]; ok {
		return r
	}
	return "Review and improve this aspect of the answer."
}

// severity grades a failed or errored result.
func severity(r core.CheckResult) core.Severity {
	switch {
	case r.HardFail:
		return core.SeverityHigh
	case r.Score < r.Threshold*0.7:
		return core.SeverityMedium
	default:
		return core.SeverityLow
	}
}

func failed(r core.CheckResult) bool {
	return r.Status == core.CheckStatusFail || r.Status == core.CheckStatusError
}

// compileReport derives violations, the decision and the overall score.
// Skipped checks never fail and are left out of the mean.
func compileReport(results []core.CheckResult, answer *core.Answer) *core.JudgeReport {
	report := &core.JudgeReport{
		Decision:   core.DecisionPass,
		Checks:     results,
		Violations: []core.Violation{},
		Passed:     true,
	}

	var sum float64
	var scored int
	blocked := false
	for _, r := range results {
		if r.Status == core.CheckStatusSkipped {
			continue
		}
		sum += r.Score
		scored++
		if !failed(r) {
			continue
		}
		report.Passed = false
		sev := severity(r)
		if sev == core.SeverityHigh {
			blocked = true
		}
		msg := r.Message
		if msg == "" {
			msg = fmt.Sprintf("%s failed (score: %.2f, threshold: %.2f)", r.CheckName, r.Score, r.Threshold)
		}
		report.Violations = append(report.Violations, core.Violation{
			CheckName:   r.CheckName,
			Severity:    sev,
			Message:     msg,
			Remediation: Remediation(r.CheckName),
		})
	}
	if scored > 0 {
		report.OverallScore = sum / float64(scored)
	}

	switch {
	case blocked:
		report.Decision = core.DecisionFailBlocked
	case !report.Passed:
		report.Decision = core.DecisionFailRetryable
	}
	report.ClaimEvidenceMapping = claimEvidence(answer)
	return report
}

// claimEvidence maps each of the first sentence-like claims of the answer
// to the chunk ids its [N] markers resolve to through the answer's own
// citation list. Out-of-range markers are dropped, as are claims left
// without evidence.
func claimEvidence(answer *core.Answer) map[string][]string {
	mapping := map[string][]string{}
	if answer == nil {
		return mapping
	}
	var claims []string
	for _, s := range strings.Split(answer.Text, ".") {
		if s = strings.TrimSpace(s); s != "" {
			claims = append(claims, s)
		}
	}
	if len(claims) > maxClaims {
		claims = claims[:maxClaims]
	}

	for _, claim := range claims {
		var chunks []string
		for _, m := range citationMarker.FindAllStringSubmatch(claim, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 || n > len(answer.Citations) {
				continue
			}
			chunks = append(chunks, answer.Citations[n-1].ChunkID)
		}
		if len(chunks) > 0 {
			mapping[claim] = chunks
		}
	}
	return mapping
}
