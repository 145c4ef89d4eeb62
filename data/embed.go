package data

import "embed"

var (
	//go:embed riskPolicy.yaml
	RiskPolicy embed.FS
)
