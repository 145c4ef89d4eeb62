package scorer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/CerberHQ/cerber/lib/policy"
	"github.com/CerberHQ/cerber/lib/policy/config"
)

// automationSignatures are substrings of client descriptors that announce
// automation tooling. Matching is deliberately coarse: this scorer is an
// allow/deny heuristic, not an attestation, and the policy device rules
// are the extension point for anything stronger.
var automationSignatures = []string{
	"headless",
	"bot",
	"crawler",
	"spider",
	"scraper",
	"selenium",
	"playwright",
	"puppeteer",
}

var mainstreamFamilies = []string{
	"chrome",
	"firefox",
	"safari",
	"edg/",
}

// DeviceTrust scores the client descriptor string and network origin.
// Base score from policy, automation keyword hits subtract, a recognized
// mainstream client family adds, then the policy's CEL device rules have
// the last word.
func DeviceTrust(ctx context.Context, descriptor, origin string, cfg config.Scoring, rules []*policy.DeviceRule) Result {
	score := cfg.DeviceBase
	var flags []string

	lowered := strings.ToLower(descriptor)

	if descriptor == "" {
		flags = append(flags, "no-descriptor")
		score -= 30
	}

	for _, sig := range automationSignatures {
		if strings.Contains(lowered, sig) {
			flags = append(flags, "automation-signature")
			score -= 50
			break
		}
	}

	for _, family := range mainstreamFamilies {
		if strings.Contains(lowered, family) {
			score += 10
			break
		}
	}

	for _, rule := range rules {
		match, err := rule.Check(ctx, descriptor, origin)
		if err != nil {
			slog.Error("can't evaluate device rule", "rule", rule.Name, "err", err)
			continue
		}
		if !match {
			continue
		}

		policy.RuleApplications.WithLabelValues(rule.Name, string(rule.Action)).Inc()

		switch rule.Action {
		case config.ActionDeny:
			flags = append(flags, "device-rule/"+rule.Name)
			score = min(score, 5)
		case config.ActionAllow:
			score = max(score, 90)
		case config.ActionWeigh:
			score += rule.Weight
		}
	}

	return Result{Score: clampScore(score), Flags: flags}
}
